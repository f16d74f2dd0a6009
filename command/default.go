package command

const (
	JSONOutputFlag = "json"
	JSONRPCFlag    = "jsonrpc"
	LogLevelFlag   = "log-level"
)

const (
	// DefaultJSONRPCAddress is the intake address the client commands connect to
	DefaultJSONRPCAddress = "http://127.0.0.1:8545"
)
