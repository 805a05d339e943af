package downloader

import (
	"context"
	"errors"
	"testing"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

type recordingMiddleware struct {
	BaseMiddleware
	name           string
	order          *[]string
	shortCircuit   *types.Response
	requestErr     error
	responseErr    error
	handleException bool
}

func (m *recordingMiddleware) ProcessRequest(ctx context.Context, req *types.Request) (*types.Request, *types.Response, error) {
	*m.order = append(*m.order, m.name+":request")
	if m.requestErr != nil {
		return nil, nil, m.requestErr
	}
	if m.shortCircuit != nil {
		return nil, m.shortCircuit, nil
	}
	return req, nil, nil
}

func (m *recordingMiddleware) ProcessResponse(ctx context.Context, req *types.Request, resp *types.Response) (*types.Response, error) {
	*m.order = append(*m.order, m.name+":response")
	if m.responseErr != nil {
		return nil, m.responseErr
	}
	return resp, nil
}

func (m *recordingMiddleware) ProcessException(ctx context.Context, req *types.Request, exc error) (*types.Response, error) {
	*m.order = append(*m.order, m.name+":exception")
	if m.handleException {
		return &types.Response{StatusCode: 200}, nil
	}
	return nil, nil
}

func TestChainRunsRequestThenResponseInReverse(t *testing.T) {
	var order []string
	a := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "a"}, name: "a", order: &order}
	b := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "b"}, name: "b", order: &order}

	fetchCalled := false
	fetch := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		fetchCalled = true
		order = append(order, "fetch")
		return &types.Response{StatusCode: 200}, nil
	}

	c := newChain(fetch, a, b)
	req, _ := types.NewRequest("https://example.com/")
	resp, err := c.run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !fetchCalled {
		t.Fatal("expected the transport fetch to run")
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	want := []string{"a:request", "b:request", "fetch", "b:response", "a:response"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("step %d: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChainProcessRequestShortCircuitsTransport(t *testing.T) {
	var order []string
	shortResp := &types.Response{StatusCode: 304}
	a := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "a"}, name: "a", order: &order, shortCircuit: shortResp}
	b := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "b"}, name: "b", order: &order}

	fetchCalled := false
	fetch := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		fetchCalled = true
		return &types.Response{StatusCode: 200}, nil
	}

	c := newChain(fetch, a, b)
	req, _ := types.NewRequest("https://example.com/")
	resp, err := c.run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if fetchCalled {
		t.Error("a ProcessRequest short-circuit must skip the transport fetch")
	}
	if resp.StatusCode != 304 {
		t.Errorf("expected the short-circuit response (304), got %d", resp.StatusCode)
	}
	// b's ProcessRequest must never run once a earlier in the chain short-circuits.
	for _, step := range order {
		if step == "b:request" {
			t.Error("remaining request middleware should be skipped on short-circuit")
		}
	}
	// The response chain still starts at the short-circuiting middleware.
	foundAResponse := false
	for _, step := range order {
		if step == "a:response" {
			foundAResponse = true
		}
	}
	if !foundAResponse {
		t.Error("expected the response chain to run starting at the short-circuiting middleware")
	}
}

func TestChainExceptionRecoveredByLaterMiddleware(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	a := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "a"}, name: "a", order: &order, handleException: true}
	b := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "b"}, name: "b", order: &order}

	fetch := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		return nil, boom
	}

	c := newChain(fetch, a, b)
	req, _ := types.NewRequest("https://example.com/")
	resp, err := c.run(context.Background(), req)
	if err != nil {
		t.Fatalf("expected the exception to be recovered, got error %v", err)
	}
	if resp == nil || resp.StatusCode != 200 {
		t.Errorf("expected the recovered response, got %v", resp)
	}
}

func TestChainExceptionPropagatesWhenUnhandled(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "a"}, name: "a", order: &[]string{}}
	fetch := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		return nil, boom
	}

	c := newChain(fetch, a)
	req, _ := types.NewRequest("https://example.com/")
	_, err := c.run(context.Background(), req)
	if !errors.Is(err, boom) {
		t.Errorf("expected the original exception to propagate, got %v", err)
	}
}
