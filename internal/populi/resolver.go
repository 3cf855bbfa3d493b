package populi

import (
	"fmt"
	"strings"

	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

// Endpoint names the known relative paths on the Populi API.
type Endpoint string

const (
	EndpointAttendance             Endpoint = "attendance"
	EndpointPerson                 Endpoint = "person"
	EndpointStudent                Endpoint = "student"
	EndpointEmail                  Endpoint = "email"
	EndpointCourseOfferingStudents Endpoint = "courseOfferingStudents"
	EndpointUpdateAttendance       Endpoint = "updateAttendance"
)

var endpointPaths = map[Endpoint]string{
	EndpointAttendance:             "/attendance/detail",
	EndpointPerson:                 "/people",
	EndpointStudent:                "/people/%s/student",
	EndpointEmail:                  "/people/%s/emailaddresses",
	EndpointCourseOfferingStudents: "/courseofferings/%s/students",
	EndpointUpdateAttendance:       "/courseofferings/%s/students/%s/attendance/update",
}

// Credentials carries what a caller needs to issue an authenticated request.
type Credentials struct {
	APIKey  string
	APIBase string
}

// Resolver resolves credentials and named endpoints to full URLs. It has no
// side effects; callers must check Credentials before issuing requests.
type Resolver struct {
	cfg config.PopuliConfig
}

// NewResolver builds a resolver over the injected Populi configuration.
func NewResolver(cfg config.PopuliConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Credentials returns the configured API key and base URL, or a configuration
// error when the key is unset.
func (r *Resolver) Credentials() (Credentials, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return Credentials{}, appErrors.Clone(appErrors.ErrConfiguration, "populi api key is not configured")
	}
	return Credentials{APIKey: r.cfg.APIKey, APIBase: r.cfg.APIBase}, nil
}

// AcademicTermID returns the configured academic term filter value.
func (r *Resolver) AcademicTermID() string {
	return r.cfg.AcademicTermID
}

// EndpointURL joins the API base with the named endpoint's relative path,
// substituting path parameters in order.
func (r *Resolver) EndpointURL(name Endpoint, args ...string) (string, error) {
	path, ok := endpointPaths[name]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("unknown populi endpoint %q", name))
	}
	if n := strings.Count(path, "%s"); n != len(args) {
		return "", appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("endpoint %q expects %d path arguments, got %d", name, n, len(args)))
	}
	params := make([]interface{}, len(args))
	for i, a := range args {
		params[i] = a
	}
	base := strings.TrimRight(r.cfg.APIBase, "/")
	return base + fmt.Sprintf(path, params...), nil
}
