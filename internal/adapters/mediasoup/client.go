package mediasoup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Client drives a mediasoup worker sidecar over its JSON HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ core.MediaEngine = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type createTransportRequest struct {
	Direction    core.Direction      `json:"direction"`
	SessionID    domain.SessionID    `json:"sessionId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type transportResponse struct {
	ID domain.TransportID `json:"id"`
	core.TransportParams
}

type connectRequest struct {
	DTLSParameters core.DTLSParameters `json:"dtlsParameters"`
}

type produceRequest struct {
	Kind          domain.MediaKind   `json:"kind"`
	RTPParameters core.RTPParameters `json:"rtpParameters"`
}

type produceResponse struct {
	ID domain.ProducerID `json:"id"`
}

type consumeRequest struct {
	ProducerID      domain.ProducerID    `json:"producerId"`
	RTPCapabilities core.RTPCapabilities `json:"rtpCapabilities"`
}

func (c *Client) Capabilities(ctx context.Context) (core.RTPCapabilities, error) {
	var caps core.RTPCapabilities
	err := c.do(ctx, http.MethodGet, "/router-capabilities", nil, &caps)
	return caps, err
}

func (c *Client) CreateTransport(ctx context.Context, opts core.TransportOptions) (*core.Transport, error) {
	var resp transportResponse
	req := createTransportRequest{Direction: opts.Direction, SessionID: opts.SessionID, ConnectionID: opts.ConnectionID}
	if err := c.do(ctx, http.MethodPost, "/transports", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, domain.EngineFailure(errors.New("transport created without id"))
	}
	return &core.Transport{ID: resp.ID, Params: resp.TransportParams}, nil
}

func (c *Client) ConnectTransport(ctx context.Context, id domain.TransportID, dtls core.DTLSParameters) error {
	return c.do(ctx, http.MethodPost, "/transports/"+url.PathEscape(string(id))+"/connect", connectRequest{DTLSParameters: dtls}, nil)
}

func (c *Client) Produce(ctx context.Context, id domain.TransportID, kind domain.MediaKind, params core.RTPParameters) (domain.ProducerID, error) {
	var resp produceResponse
	if err := c.do(ctx, http.MethodPost, "/transports/"+url.PathEscape(string(id))+"/produce", produceRequest{Kind: kind, RTPParameters: params}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", domain.EngineFailure(errors.New("producer created without id"))
	}
	return resp.ID, nil
}

func (c *Client) Consume(ctx context.Context, id domain.TransportID, producer domain.ProducerID, caps core.RTPCapabilities) (*core.Consumer, error) {
	var resp core.Consumer
	if err := c.do(ctx, http.MethodPost, "/transports/"+url.PathEscape(string(id))+"/consume", consumeRequest{ProducerID: producer, RTPCapabilities: caps}, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, domain.EngineFailure(errors.New("consumer created without id"))
	}
	if resp.ProducerID == "" {
		resp.ProducerID = producer
	}
	return &resp, nil
}

func (c *Client) SetConsumerLayers(ctx context.Context, id domain.ConsumerID, layers core.Layers) error {
	return c.do(ctx, http.MethodPost, "/consumers/"+url.PathEscape(string(id))+"/layers", layers, nil)
}

// Close deletes the resource. The worker answering 404 means it is already gone.
func (c *Client) Close(ctx context.Context, h core.Handle) error {
	var coll string
	switch h.Type {
	case core.HandleTransport:
		coll = "transports"
	case core.HandleProducer:
		coll = "producers"
	case core.HandleConsumer:
		coll = "consumers"
	default:
		return errors.Wrapf(domain.ErrInvalidInput, "unknown handle type %q", h.Type)
	}
	err := c.do(ctx, http.MethodDelete, "/"+coll+"/"+url.PathEscape(h.ID), nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(domain.ErrInvalidInput, "encode %s %s: %v", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return domain.EngineFailure(errors.Wrapf(err, "build %s %s", method, path))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.EngineFailure(errors.Wrapf(err, "%s %s", method, path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.EngineFailure(errors.Wrapf(err, "decode %s %s", method, path))
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var e errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(raw))
	}
	msg := fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	log.Debug().Str("module", "mediasoup").Int("status", resp.StatusCode).Str("code", e.Code).Msg(msg)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(domain.ErrNotFound, msg)
	case resp.StatusCode == http.StatusConflict && e.Code == string(domain.CodeIncompatible):
		return errors.Wrap(domain.ErrIncompatible, msg)
	default:
		return domain.EngineFailure(errors.New(msg))
	}
}
