// Command lyra runs the client runtime headless: it authenticates, opens
// the dealer connection, and drives the player loop until interrupted.
// Track metadata, encrypted-file, and decryption-key backends are
// supplied by the embedding application; this binary wires everything
// else (tokens, service client, dealer, decode, playback) together so
// it can be pointed at a real backend with three lines of glue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lyra/dealer"
	"lyra/loader"
	"lyra/player"
	"lyra/session"
	"lyra/sink"
	"lyra/spclient"
	"lyra/token"
	"lyra/uri"
)

func setDefaultEnv(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

// staticAccessToken is the simplest possible AccessTokenSource: a token
// handed in on the command line rather than obtained through an
// interactive login flow, which is out of scope for this binary.
type staticAccessToken token.Token

func (s staticAccessToken) Token() (token.Token, error) { return token.Token(s), nil }

func main() {
	var (
		accessToken = flag.String("access-token", os.Getenv("LYRA_ACCESS_TOKEN"), "bearer access token")
		clientID    = flag.String("client-id", os.Getenv("LYRA_CLIENT_ID"), "platform client id")
		deviceID    = flag.String("device-id", "", "per-installation device id")
		country     = flag.String("country", "US", "storefront country code")
		bitrate     = flag.Int("bitrate", 160, "preferred bitrate in kbps (96, 160, 320)")
		apHost      = flag.String("ap-host", "", "access point host (normally resolved, overridable for local testing)")
		apPort      = flag.Int("ap-port", 443, "access point port")
	)
	flag.Parse()

	if *accessToken == "" {
		log.Fatal("lyra: -access-token is required")
	}
	setDefaultEnv("LYRA_CLIENT_ID", *clientID)

	prefs := session.LoadPreferences()
	if *bitrate != 0 {
		prefs.PreferredBitrate = *bitrate
	}
	cfg, normCfg := session.ApplyPreferences(session.Config{
		ClientID: *clientID,
		DeviceID: *deviceID,
		Country:  *country,
	}, prefs)

	accessTokens := staticAccessToken(token.Token{
		AccessToken: *accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   time.Hour,
		Timestamp:   time.Now(),
	})
	clientTokens := token.NewClientTokenManager(clientTokenTransport, cfg.PlatformDescriptor(), token.SolveSHA256)

	resolver := spclient.ResolverFunc(func(ctx context.Context) (spclient.AccessPoint, error) {
		return spclient.AccessPoint{Host: *apHost, Port: uint16(*apPort)}, nil
	})
	svc := spclient.New(spclient.Config{
		Resolver:     resolver,
		Country:      *country,
		AccessTokens: accessTokens,
		ClientTokens: clientTokens,
	})

	dealerGetURL := func(ctx context.Context) (string, error) {
		ap, err := resolver.Resolve(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("wss://%s:%d/dealer", ap.Host, ap.Port), nil
	}
	d := dealer.New(dealerGetURL)

	handlers := uri.NewHandlerMap()
	_ = handlers // registered by the embedding application per message type

	snk := sink.NewPortAudio(44100, 2, 1024)
	p := player.New(player.Config{
		LoaderDeps:    loader.Deps{Bitrate: prefs.PreferredBitrate},
		Sink:          snk,
		Gapless:       true,
		Normalisation: normCfg,
	})
	p.SetSinkEventCallback(func(s sink.State) {
		log.Printf("lyra: sink state -> %s", s)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go p.Run(ctx)
	go d.Run(ctx)

	events := p.Events()
	go func() {
		for ev := range events {
			log.Printf("lyra: event %T (request %d)", ev, ev.PlayRequestID())
		}
	}()

	log.Printf("lyra: connected as client %s, preferred bitrate %dkbps", cfg.ClientID, cfg.PreferredBitrate)
	_ = svc // wired for the embedding application's metadata/file/key providers

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Print("lyra: shutting down")
	p.Close()
	d.Close()
	if err := session.SavePreferences(prefs); err != nil {
		log.Printf("lyra: failed to save preferences: %v", err)
	}
}

// clientTokenTransport is the out-of-scope HTTP/protobuf round trip: a
// real implementation POSTs to the client-token endpoint and decodes the
// protobuf response into the logical shape token.ClientTokenResponse
// describes.
func clientTokenTransport(ctx context.Context, req token.ClientTokenRequest) (token.ClientTokenResponse, error) {
	return token.ClientTokenResponse{}, fmt.Errorf("lyra: client-token transport not wired to a real endpoint")
}
