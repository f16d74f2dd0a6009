package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/0xPolygon/polygon-preconf/version"
)

const (
	// maxRequestBodySize bounds the size of a single http request
	maxRequestBodySize = 5 * 1024 * 1024

	readHeaderTimeout = 10 * time.Second
)

// JSONRPC is the user op intake server
type JSONRPC struct {
	logger     hclog.Logger
	config     *Config
	dispatcher dispatcher

	listener net.Listener
	server   *http.Server
}

type dispatcher interface {
	Handle(reqBody []byte) ([]byte, error)
}

type Config struct {
	Handler                  userOpHandler
	Addr                     *net.TCPAddr
	AccessControlAllowOrigin []string
	BatchLengthLimit         uint64
}

// NewJSONRPC binds the JSONRPC http server to its address. It does not serve until Start.
func NewJSONRPC(logger hclog.Logger, config *Config) (*JSONRPC, error) {
	d, err := newDispatcher(
		logger,
		config.Handler,
		&dispatcherParams{
			jsonRPCBatchLengthLimit: config.BatchLengthLimit,
		},
	)
	if err != nil {
		return nil, err
	}

	srv := &JSONRPC{
		logger:     logger.Named("jsonrpc"),
		config:     config,
		dispatcher: d,
	}

	// bind the listener, requests are accepted once Start is called
	if err := srv.setupHTTP(); err != nil {
		return nil, err
	}

	return srv, nil
}

// Addr returns the address the server listens on
func (j *JSONRPC) Addr() net.Addr {
	return j.listener.Addr()
}

// Start begins serving requests on the bound listener
func (j *JSONRPC) Start() {
	j.logger.Info("http server started", "addr", j.listener.Addr().String())

	go func() {
		if err := j.server.Serve(j.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			j.logger.Error("closed http connection", "err", err)
		}
	}()
}

// Close gracefully stops the http server
func (j *JSONRPC) Close(ctx context.Context) error {
	if err := j.server.Shutdown(ctx); err != nil {
		return err
	}

	// Shutdown leaves a listener that never reached Serve open
	if err := j.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func (j *JSONRPC) setupHTTP() error {
	lis, err := net.Listen("tcp", j.config.Addr.String())
	if err != nil {
		return err
	}

	j.listener = lis

	mux := http.NewServeMux()

	// The middleware factory returns a handler, so we need to wrap the handler function properly.
	jsonRPCHandler := http.HandlerFunc(j.handle)
	mux.Handle("/", middlewareFactory(j.config)(jsonRPCHandler))

	mux.HandleFunc("/ws", j.handleWs)

	j.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return nil
}

// The middlewareFactory builds a middleware which enables CORS using the provided config.
func middlewareFactory(config *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			for _, allowedOrigin := range config.AccessControlAllowOrigin {
				if allowedOrigin == "*" {
					w.Header().Set("Access-Control-Allow-Origin", "*")

					break
				}

				if allowedOrigin == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)

					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// wsUpgrader defines upgrade parameters for the WS connection
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsWrapper is a wrapping object for the web socket connection and logger
type wsWrapper struct {
	ws        *websocket.Conn // the actual WS connection
	logger    hclog.Logger    // module logger
	writeLock sync.Mutex      // writer lock
}

// WriteMessage writes out the message to the WS peer
func (w *wsWrapper) WriteMessage(messageType int, data []byte) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	writeErr := w.ws.WriteMessage(messageType, data)
	if writeErr != nil {
		w.logger.Error("unable to write WS message", "err", writeErr)
	}

	return writeErr
}

// isSupportedWSType returns a status indicating if the message type is supported
func isSupportedWSType(messageType int) bool {
	return messageType == websocket.TextMessage ||
		messageType == websocket.BinaryMessage
}

func (j *JSONRPC) handleWs(w http.ResponseWriter, req *http.Request) {
	// Upgrade the connection to a WS one
	ws, err := wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		j.logger.Error("unable to upgrade to a WS connection", "err", err)

		return
	}

	// Defer WS closure
	defer func(ws *websocket.Conn) {
		if err := ws.Close(); err != nil {
			j.logger.Error("unable to gracefully close WS connection", "err", err)
		}
	}(ws)

	wrapConn := &wsWrapper{ws: ws, logger: j.logger}

	j.logger.Debug("websocket connection established")

	// Run the listen loop
	for {
		// Read the incoming message
		msgType, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				// Accepted close codes
				j.logger.Debug("closing WS connection gracefully")
			} else {
				j.logger.Error("unable to read WS message", "err", err)
			}

			break
		}

		if isSupportedWSType(msgType) {
			go func() {
				resp, handleErr := j.dispatcher.Handle(message)
				if handleErr != nil {
					j.logger.Error("unable to handle WS request", "err", handleErr)

					_ = wrapConn.WriteMessage(
						msgType,
						[]byte(fmt.Sprintf("WS Handle error: %s", handleErr.Error())),
					)
				} else {
					_ = wrapConn.WriteMessage(msgType, resp)
				}
			}()
		}
	}
}

// GetResponse is returned for plain GET requests
type GetResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (j *JSONRPC) handle(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set(
		"Access-Control-Allow-Headers",
		"Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization",
	)

	switch req.Method {
	case http.MethodOptions:
		return
	case http.MethodGet:
		j.handleGetRequest(w)
	case http.MethodPost:
		j.handleJSONRPCRequest(w, req)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte("method " + req.Method + " not allowed"))
	}
}

func (j *JSONRPC) handleGetRequest(writer io.Writer) {
	data := &GetResponse{
		Name:    "polygon-preconf",
		Version: version.Version,
	}

	resp, err := json.Marshal(data)
	if err != nil {
		_, _ = writer.Write([]byte(err.Error()))
	}

	if _, err = writer.Write(resp); err != nil {
		_, _ = writer.Write([]byte(err.Error()))
	}
}

func (j *JSONRPC) handleJSONRPCRequest(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodySize))
	if err != nil {
		_, _ = w.Write([]byte(err.Error()))

		return
	}

	// log request
	j.logger.Trace("handle", "request", string(data))

	resp, err := j.dispatcher.Handle(data)
	if err != nil {
		_, _ = w.Write([]byte(err.Error()))

		return
	}

	_, _ = w.Write(resp)

	j.logger.Trace("handle", "response", string(resp))
}
