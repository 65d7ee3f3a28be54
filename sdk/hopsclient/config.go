package hopsclient

// Config is the configuration data used by the hopsclient interface implementation
type Config struct {
	Host                  string
	Verbose               bool
	Retry                 int
	InsecureSkipVerifyTLS bool
	RequestSecondsTimeout int
	userAgent             string
}
