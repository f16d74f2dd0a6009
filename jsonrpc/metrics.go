package jsonrpc

// jsonRPCMetric is the prefix of the intake metrics
const jsonRPCMetric = "jsonrpc"
