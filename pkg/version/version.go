package version

// Version is the current version of the call activity report server
const Version = "0.3.1"

// UserAgent returns the User-Agent string for outbound requests
func UserAgent() string {
	return "callreport/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "callreport/" + Version
}
