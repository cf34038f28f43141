package principal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/riffid/internal/errs"
)

const (
	compactSeparator = ":@:"
	compactAbsent    = "-"
	compactVersion   = "1"
	compactFields    = 9
)

// Passport is the identity payload embedded, encrypted, in a token subject.
// Subject is the encrypted form the passport was decoded from and is not part of Compact.
type Passport struct {
	Tenant   string
	Platform string
	App      string
	Client   string
	UserID   int64
	Username string
	Mobile   string
	Type     UserType
	Subject  string
}

// Compact renders the canonical compacted username:
// tenant:@:platform:@:app:@:client:@:userId:@:username:@:mobile:@:type:@:version.
// An absent mobile is written as "-".
func (p Passport) Compact() string {
	mobile := p.Mobile
	if mobile == "" {
		mobile = compactAbsent
	}
	return strings.Join([]string{
		p.Tenant,
		p.Platform,
		p.App,
		p.Client,
		strconv.FormatInt(p.UserID, 10),
		p.Username,
		mobile,
		strconv.Itoa(int(p.Type)),
		compactVersion,
	}, compactSeparator)
}

// Validate reports errs.ErrMalformed when a field would not survive Compact,
// i.e. it contains the field separator.
func (p Passport) Validate() error {
	for _, f := range []struct{ name, v string }{
		{"tenant", p.Tenant},
		{"platform", p.Platform},
		{"app", p.App},
		{"client", p.Client},
		{"username", p.Username},
		{"mobile", p.Mobile},
	} {
		if strings.Contains(f.v, compactSeparator) {
			return fmt.Errorf("%w: passport %s contains %q", errs.ErrMalformed, f.name, compactSeparator)
		}
	}
	return nil
}

// ParsePassport decodes a compacted username. subject is recorded verbatim on the result.
func ParsePassport(compact, subject string) (Passport, error) {
	parts := strings.Split(compact, compactSeparator)
	if len(parts) != compactFields {
		return Passport{}, fmt.Errorf("%w: passport has %d fields", errs.ErrMalformed, len(parts))
	}
	uid, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return Passport{}, fmt.Errorf("%w: passport user id", errs.ErrMalformed)
	}
	typ, err := strconv.Atoi(parts[7])
	if err != nil {
		return Passport{}, fmt.Errorf("%w: passport type", errs.ErrMalformed)
	}
	mobile := parts[6]
	if mobile == compactAbsent {
		mobile = ""
	}
	return Passport{
		Tenant:   parts[0],
		Platform: parts[1],
		App:      parts[2],
		Client:   parts[3],
		UserID:   uid,
		Username: parts[5],
		Mobile:   mobile,
		Type:     UserType(typ),
		Subject:  subject,
	}, nil
}
