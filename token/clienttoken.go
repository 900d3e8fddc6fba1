package token

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"lyra/lyraerr"
)

// PlatformOS is the operating system field of the platform descriptor.
type PlatformOS string

const (
	OSWindows PlatformOS = "windows"
	OSMacOS   PlatformOS = "macos"
	OSLinux   PlatformOS = "linux"
	OSIOS     PlatformOS = "ios"
	OSAndroid PlatformOS = "android"
)

// windowsMachineCodes is the fixed pe_machine/image_file_machine table from
// spec §4.3 step 1. Unknown architectures fall back to the x86 values,
// matching the Open Question in §9: this table is empirical and should
// not be generalised without evidence.
var windowsMachineCodes = map[string][2]int{
	"arm":     {448, 452},
	"aarch64": {43620, 452},
	"x86_64":  {34404, 34404},
}

func windowsMachinePair(arch string) (peMachine, imageFileMachine int) {
	if v, ok := windowsMachineCodes[arch]; ok {
		return v[0], v[1]
	}
	return 332, 332 // x86 default
}

// WindowsFields carries the platform-specific attributes required when
// PlatformOS is OSWindows.
type WindowsFields struct {
	OSVersion        int
	OSBuild          int
	PEMachine        int
	ImageFileMachine int
}

// NewWindowsFields fills PEMachine/ImageFileMachine from the fixed
// architecture table.
func NewWindowsFields(osVersion, osBuild int, arch string) WindowsFields {
	pe, ifm := windowsMachinePair(arch)
	return WindowsFields{OSVersion: osVersion, OSBuild: osBuild, PEMachine: pe, ImageFileMachine: ifm}
}

// PlatformDescriptor is the client-identity payload sent when requesting
// a client token.
type PlatformDescriptor struct {
	ClientID    string
	DeviceID    string
	Version     string
	OS          PlatformOS
	Windows     *WindowsFields // set iff OS == OSWindows
}

// ClientTokenRequest is the stand-in for the out-of-scope protobuf
// ClientTokenRequest message (spec §1: protobuf definitions are assumed
// available as generated types; this module only needs their logical
// shape to drive the challenge state machine).
type ClientTokenRequest struct {
	Platform      PlatformDescriptor
	ChallengeState string // set only when answering a challenge
	Answer         *ChallengeAnswer
}

// ResponseKind discriminates ClientTokenResponse.
type ResponseKind string

const (
	ResponseGranted    ResponseKind = "GRANTED_TOKEN"
	ResponseChallenges ResponseKind = "CHALLENGES"
)

// ClientTokenResponse is the stand-in for the out-of-scope protobuf
// ClientTokenResponse message.
type ClientTokenResponse struct {
	Kind               ResponseKind
	GrantedToken       string
	RefreshAfterSeconds int64
	Challenges         []Challenge
}

// Challenge is one hash-cash challenge offered by the server.
type Challenge struct {
	State  string
	Prefix string // hex-encoded
	Length int    // minimum trailing zero bits required
}

// ChallengeAnswer is the suffix computed to satisfy a Challenge.
type ChallengeAnswer struct {
	State  string
	Suffix string // upper-case hex
}

// Transport performs one client-token RPC round trip. It is the
// out-of-scope HTTP/protobuf transport; a real implementation POSTs to
// https://clienttoken.spotify.com/v1/clienttoken with
// Accept: application/x-protobuf and the request protobuf-encoded.
type Transport func(ctx context.Context, req ClientTokenRequest) (ClientTokenResponse, error)

const maxHashCashTries = 3

// ClientTokenManager caches the client token and drives the hash-cash
// challenge loop on demand.
type ClientTokenManager struct {
	transport Transport
	platform  PlatformDescriptor
	solver    HashCashSolver

	mu    sync.Mutex
	token *Token
}

// NewClientTokenManager constructs a manager. solver defaults to
// SolveSHA256 if nil.
func NewClientTokenManager(transport Transport, platform PlatformDescriptor, solver HashCashSolver) *ClientTokenManager {
	if solver == nil {
		solver = SolveSHA256
	}
	return &ClientTokenManager{transport: transport, platform: platform, solver: solver}
}

// Get returns the cached client token, refreshing it if absent or
// expired.
func (m *ClientTokenManager) Get(ctx context.Context, now time.Time) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil && !m.token.Expired(now) {
		return *m.token, nil
	}
	tok, err := m.acquire(ctx, now)
	if err != nil {
		return Token{}, err
	}
	m.token = &tok
	return tok, nil
}

func (m *ClientTokenManager) acquire(ctx context.Context, now time.Time) (Token, error) {
	req := ClientTokenRequest{Platform: m.platform}
	resp, err := m.transport(ctx, req)
	if err != nil {
		return Token{}, lyraerr.Wrap(lyraerr.Unavailable, "client token request", err)
	}

	switch resp.Kind {
	case ResponseGranted:
		return m.tokenFromResponse(resp, now), nil
	case ResponseChallenges:
		return m.solveChallenges(ctx, resp.Challenges, now)
	default:
		return Token{}, lyraerr.New(lyraerr.Unimplemented, fmt.Sprintf("unknown client-token response kind %q", resp.Kind))
	}
}

func (m *ClientTokenManager) solveChallenges(ctx context.Context, challenges []Challenge, now time.Time) (Token, error) {
	if len(challenges) == 0 {
		return Token{}, lyraerr.New(lyraerr.FailedPrecondition, "server returned CHALLENGES with no challenge")
	}
	challenge := challenges[0]

	for attempt := 0; attempt < maxHashCashTries; attempt++ {
		prefix, err := hex.DecodeString(challenge.Prefix)
		if err != nil {
			return Token{}, lyraerr.Wrap(lyraerr.FailedPrecondition, "invalid challenge prefix", err)
		}

		suffix, err := m.solver(ctx, prefix, challenge.Length)
		if err != nil {
			// Unsolvable (timeout): re-request a fresh challenge.
			resp, reqErr := m.transport(ctx, ClientTokenRequest{Platform: m.platform})
			if reqErr != nil {
				return Token{}, lyraerr.Wrap(lyraerr.Unavailable, "re-request after unsolvable challenge", reqErr)
			}
			if resp.Kind != ResponseChallenges || len(resp.Challenges) == 0 {
				return Token{}, lyraerr.New(lyraerr.FailedPrecondition, "expected a fresh challenge after unsolvable attempt")
			}
			challenge = resp.Challenges[0]
			continue
		}

		answer := ChallengeAnswer{State: challenge.State, Suffix: encodeSuffix(suffix)}
		resp, err := m.transport(ctx, ClientTokenRequest{
			Platform:       m.platform,
			ChallengeState: challenge.State,
			Answer:         &answer,
		})
		if err != nil {
			return Token{}, lyraerr.Wrap(lyraerr.Unavailable, "submit challenge answer", err)
		}

		switch resp.Kind {
		case ResponseGranted:
			return m.tokenFromResponse(resp, now), nil
		case ResponseChallenges:
			// Rejected answer: retry with the replacement challenge the
			// server sent back.
			if len(resp.Challenges) == 0 {
				return Token{}, lyraerr.New(lyraerr.FailedPrecondition, "challenge rejected with no replacement offered")
			}
			challenge = resp.Challenges[0]
			continue
		default:
			return Token{}, lyraerr.New(lyraerr.Unimplemented, fmt.Sprintf("unknown client-token response kind %q", resp.Kind))
		}
	}
	return Token{}, lyraerr.New(lyraerr.FailedPrecondition, "hash-cash challenge not solved after max tries")
}

func (m *ClientTokenManager) tokenFromResponse(resp ClientTokenResponse, now time.Time) Token {
	expiresIn := time.Duration(resp.RefreshAfterSeconds) * time.Second
	if resp.RefreshAfterSeconds <= 0 {
		expiresIn = 7200 * time.Second
	}
	return Token{
		AccessToken: resp.GrantedToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Timestamp:   now,
	}
}
