package spclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"lyra/lyraerr"
)

type fakeDoer struct {
	do func(req *http.Request) (*http.Response, error)
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) { return f.do(req) }

func unavailableResp() *http.Response {
	return &http.Response{StatusCode: 503, Body: io.NopCloser(strings.NewReader("down"))}
}

func TestRetryRotatesAccessPointEveryThirdFailure(t *testing.T) {
	resolveCalls := 0
	aps := []AccessPoint{{Host: "ap1"}, {Host: "ap2"}, {Host: "ap3"}}
	resolver := ResolverFunc(func(ctx context.Context) (AccessPoint, error) {
		ap := aps[resolveCalls%len(aps)]
		resolveCalls++
		return ap, nil
	})

	doer := &fakeDoer{do: func(req *http.Request) (*http.Response, error) {
		return unavailableResp(), nil
	}}

	c := New(Config{HTTP: doer, Resolver: resolver, Strategy: TryTimes(7), Country: "US"})
	_, err := c.Request(context.Background(), http.MethodGet, "/x", RequestOptions{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if lyraerr.KindOf(err) != lyraerr.Unavailable {
		t.Errorf("kind = %v, want Unavailable", lyraerr.KindOf(err))
	}
	if resolveCalls != 3 {
		t.Errorf("resolveCalls = %d, want 3", resolveCalls)
	}
}

func TestNonTransientErrorAbortsImmediately(t *testing.T) {
	resolveCalls := 0
	resolver := ResolverFunc(func(ctx context.Context) (AccessPoint, error) {
		resolveCalls++
		return AccessPoint{Host: "ap1"}, nil
	})
	attempts := 0
	doer := &fakeDoer{do: func(req *http.Request) (*http.Response, error) {
		attempts++
		return &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader("nope"))}, nil
	}}
	c := New(Config{HTTP: doer, Resolver: resolver, Strategy: TryTimes(10), Country: "US"})
	_, err := c.Request(context.Background(), http.MethodGet, "/x", RequestOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on non-transient error)", attempts)
	}
}

func TestSuccessReturnsBody(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context) (AccessPoint, error) {
		return AccessPoint{Host: "ap1", Port: 443}, nil
	})
	var gotURL string
	doer := &fakeDoer{do: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	}}
	c := New(Config{HTTP: doer, Resolver: resolver, Country: "US"})
	body, err := c.Request(context.Background(), http.MethodGet, "/melody/v1/x", RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(gotURL, "product=0") || !strings.Contains(gotURL, "country=US") || !strings.Contains(gotURL, "salt=") {
		t.Errorf("url missing required query params: %s", gotURL)
	}
}

func TestPreservesExistingSalt(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context) (AccessPoint, error) {
		return AccessPoint{Host: "ap1"}, nil
	})
	var gotURL string
	doer := &fakeDoer{do: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	}}
	c := New(Config{HTTP: doer, Resolver: resolver, Country: "US"})
	_, err := c.Request(context.Background(), http.MethodGet, "/x?salt=42", RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if strings.Count(gotURL, "salt=") != 1 || !strings.Contains(gotURL, "salt=42") {
		t.Errorf("expected existing salt preserved, got %s", gotURL)
	}
}

func TestDownloadSetsRangeHeader(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context) (AccessPoint, error) {
		return AccessPoint{Host: "ap1"}, nil
	})
	var gotRange string
	doer := &fakeDoer{do: func(req *http.Request) (*http.Response, error) {
		gotRange = req.Header.Get("Range")
		return &http.Response{StatusCode: 206, Body: io.NopCloser(strings.NewReader("chunk"))}, nil
	}}
	c := New(Config{HTTP: doer, Resolver: resolver, Country: "US"})
	rc, err := c.Download(context.Background(), "/x", 100, 50)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	if gotRange != "bytes=100-149" {
		t.Errorf("range = %q, want bytes=100-149", gotRange)
	}
}
