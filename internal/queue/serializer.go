package queue

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Serializer converts requests to and from bytes for backends that
// persist or transmit requests out of process. Callback/Errback
// references survive as plain names and are re-bound by the spider
// registry on Pop.
type Serializer interface {
	Serialize(req *types.Request) ([]byte, error)
	Deserialize(data []byte) (*types.Request, error)
	Name() string
}

// wireRequest is the serializer-neutral on-the-wire shape of a request.
type wireRequest struct {
	URL         string
	Method      string
	Headers     http.Header
	Body        []byte
	Priority    int
	Meta        types.RequestMeta
	Callback    string
	Errback     string
	DontFilter  bool
	Flags       []string
	MaxRetries  int
	FetcherType string
	ParentURL   string
	CreatedAt   time.Time
	ID          string
}

func toWire(req *types.Request) wireRequest {
	return wireRequest{
		URL:         req.URLString(),
		Method:      req.Method,
		Headers:     req.Headers,
		Body:        req.Body,
		Priority:    req.Priority,
		Meta:        req.Meta,
		Callback:    req.Callback,
		Errback:     req.Errback,
		DontFilter:  req.DontFilter,
		Flags:       req.Flags,
		MaxRetries:  req.MaxRetries,
		FetcherType: req.FetcherType,
		ParentURL:   req.ParentURL,
		CreatedAt:   req.CreatedAt,
		ID:          req.ID,
	}
}

func fromWire(w wireRequest) (*types.Request, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return nil, err
	}
	return &types.Request{
		URL:         u,
		Method:      w.Method,
		Headers:     w.Headers,
		Body:        w.Body,
		Priority:    w.Priority,
		Meta:        w.Meta,
		Callback:    w.Callback,
		Errback:     w.Errback,
		DontFilter:  w.DontFilter,
		Flags:       w.Flags,
		MaxRetries:  w.MaxRetries,
		FetcherType: w.FetcherType,
		ParentURL:   w.ParentURL,
		CreatedAt:   w.CreatedAt,
		ID:          w.ID,
	}, nil
}

// JSONSerializer is the simple-payload serializer: plain
// JSON, human-inspectable, used by the disk and Redis backends by
// default.
type JSONSerializer struct{}

func (JSONSerializer) Name() string { return "json" }

func (JSONSerializer) Serialize(req *types.Request) ([]byte, error) {
	return json.Marshal(toWire(req))
}

func (JSONSerializer) Deserialize(data []byte) (*types.Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

// GobSerializer is the general-purpose binary serializer,
// used when a queue backend needs compact framing; callback references
// still survive as names, never as function pointers.
type GobSerializer struct{}

func (GobSerializer) Name() string { return "gob" }

func (GobSerializer) Serialize(req *types.Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toWire(req)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Deserialize(data []byte) (*types.Request, error) {
	var w wireRequest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, err
	}
	return fromWire(w)
}
