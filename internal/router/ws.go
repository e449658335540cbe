package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/logging"
)

var (
	errMissingSignature     = daemonerr.Authorization("missing signature")
	errMalformedSignature   = daemonerr.Authorization("malformed signature")
	errSignatureVerification = daemonerr.Authorization("signature verification failed")
	errRequesterMismatch    = daemonerr.Authorization("requester does not match signature")
)

// WSTransport is the signed-messaging listener (spec §4.5): each inbound
// message carries a requester field whose signature over the body is
// verified before dispatch. Delivery ordering across messages on one
// connection is not guaranteed relative to the HTTP transport — handler
// idempotency is the handler's responsibility, per spec §4.5.
type WSTransport struct {
	rt       *Router
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// wsMessage is the signed envelope a client sends over the socket: the
// same shape verified by WalletAuthMiddleware for HTTP, restated here
// because a socket connection has no per-request header to carry the
// signature in.
type wsMessage struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Path      string          `json:"path"`
	Params    map[string]string `json:"params"`
	Body      json.RawMessage `json:"body"`
	Requester string          `json:"requester"`
	Signature string          `json:"signature"`
}

// NewWSTransport builds the signed-messaging transport sharing rt's Table.
func NewWSTransport(rt *Router, logger *logging.Logger) *WSTransport {
	return &WSTransport{
		rt:     rt,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// conn serializes writes to one websocket connection — gorilla/websocket
// permits only one concurrent writer, but each inbound message is handled
// on its own goroutine so responses can race.
type conn struct {
	ws   *websocket.Conn
	wsMu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(v)
}

// ServeHTTP upgrades the connection and runs the read loop until reading
// a message fails (for example, the client disconnects).
func (t *WSTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.WithError(err).Warnf("websocket upgrade failed")
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	ctx := r.Context()
	for {
		var msg wsMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if !isExpectedCloseError(err) {
				t.logger.WithError(err).Debugf("websocket read failed, closing connection")
			}
			return
		}
		go t.handle(ctx, c, msg)
	}
}

// handle verifies the message's signature, dispatches it, and writes the
// response back on the same connection — each message is independent, so
// a slow handler does not block the read loop.
func (t *WSTransport) handle(ctx context.Context, c *conn, msg wsMessage) {
	requester, err := verifySignedMessage(msg)
	if err != nil {
		t.writeError(c, msg.ID, err)
		return
	}

	req := &PipeRequest{
		ID:        msg.ID,
		Requester: requester,
		Params:    msg.Params,
		Body:      msg.Body,
	}

	resp := t.rt.Dispatch(ctx, Method(msg.Method), msg.Path, req)
	t.writeResponse(c, msg.ID, resp)
}

func verifySignedMessage(msg wsMessage) (chainiface.Address, error) {
	if msg.Signature == "" {
		return chainiface.Address{}, errMissingSignature
	}
	sigBytes, err := chainiface.DecodeSignature(msg.Signature)
	if err != nil {
		return chainiface.Address{}, errMalformedSignature
	}
	requester, err := chainiface.RecoverAddress(msg.Body, sigBytes)
	if err != nil {
		return chainiface.Address{}, errSignatureVerification
	}
	if msg.Requester != "" && !chainiface.AddressEqualString(requester, msg.Requester) {
		return chainiface.Address{}, errRequesterMismatch
	}
	return requester, nil
}

func (t *WSTransport) writeResponse(c *conn, id string, resp *Response) {
	envelope := map[string]any{"id": id, "code": resp.Code, "body": resp.Body}
	if err := c.writeJSON(envelope); err != nil {
		t.logger.WithError(err).Debugf("websocket write failed for request %s", id)
	}
}

func (t *WSTransport) writeError(c *conn, id string, err error) {
	t.writeResponse(c, id, errorResponse(err))
}

func isExpectedCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
