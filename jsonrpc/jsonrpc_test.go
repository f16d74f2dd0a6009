package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/version"
)

func newTestJSONRPC(t *testing.T, handler userOpHandler) *JSONRPC {
	t.Helper()

	srv, err := NewJSONRPC(hclog.NewNullLogger(), &Config{
		Handler:                  handler,
		Addr:                     &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		AccessControlAllowOrigin: []string{"*"},
	})
	require.NoError(t, err)

	srv.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = srv.Close(ctx)
	})

	return srv
}

func Test_handleGetRequest(t *testing.T) {
	t.Parallel()

	jsonRPC := &JSONRPC{config: &Config{}}

	mockWriter := bytes.NewBuffer(nil)
	jsonRPC.handleGetRequest(mockWriter)

	response := &GetResponse{}
	require.NoError(t, json.Unmarshal(mockWriter.Bytes(), response))

	assert.Equal(t, &GetResponse{Name: "polygon-preconf", Version: version.Version}, response)
}

func TestHandleJSONRPCRequest_MaliciousInput(t *testing.T) {
	t.Parallel()

	d, err := newDispatcher(hclog.NewNullLogger(), new(mockHandler), &dispatcherParams{})
	require.NoError(t, err)

	j := &JSONRPC{logger: hclog.NewNullLogger(), config: &Config{}, dispatcher: d}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`<script>alert("XSS attack");</script>`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	j.handle(w, req)

	require.Contains(t, w.Body.String(), "Invalid json request")
}

func TestHandle_CORS(t *testing.T) {
	t.Parallel()

	d, err := newDispatcher(hclog.NewNullLogger(), new(mockHandler), &dispatcherParams{})
	require.NoError(t, err)

	j := &JSONRPC{
		logger:     hclog.NewNullLogger(),
		config:     &Config{AccessControlAllowOrigin: []string{"https://app.example"}},
		dispatcher: d,
	}

	handler := middlewareFactory(j.config)(http.HandlerFunc(j.handle))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://other.example")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPut, "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestJSONRPC_Client(t *testing.T) {
	t.Parallel()

	op := &bridge.UserOp{
		Submitter: ethgo.HexToAddress("0xAA"),
		Calldata:  bridge.HexBytes{0x01},
	}

	handler := new(mockHandler)
	handler.On("Submit", op).Return(uint64(1), nil)
	handler.On("Status", uint64(1)).Return(bridge.Pending(), nil)
	handler.On("Status", uint64(2)).Return(bridge.UserOpStatus{}, bridge.ErrNotFound)

	srv := newTestJSONRPC(t, handler)

	client, err := NewClient("http://" + srv.Addr().String())
	require.NoError(t, err)

	defer client.Close()

	id, err := client.SendUserOp(op)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	status, err := client.UserOpStatus(id)
	require.NoError(t, err)
	require.Equal(t, bridge.Pending(), status)

	_, err = client.UserOpStatus(2)
	require.Error(t, err)

	handler.AssertExpectations(t)
}

func TestJSONRPC_Websocket(t *testing.T) {
	t.Parallel()

	handler := new(mockHandler)
	handler.On("Submit", mock.Anything).Return(uint64(7), nil)

	srv := newTestJSONRPC(t, handler)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	require.NoError(t, err)

	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
		"jsonrpc":"2.0",
		"id":1,
		"method":"surge_sendUserOp",
		"params":[{"submitter":"0x00000000000000000000000000000000000000aa","calldata":"0xdeadbeef"}]
	}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	resp := decodeResponse(t, data)
	require.Nil(t, resp.Error)
	assert.Equal(t, "7", string(resp.Result))
}
