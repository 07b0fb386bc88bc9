package server

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// A TokenDecoder validates and decodes the API keys passed to the server.
// An unknown token decodes to the user "" with RoleUnknown. An error is
// returned only if the lookup itself failed.
type TokenDecoder interface {
	TokenDecode(token string) (user string, role Role, err error)
}

// Role is what a user may do. Each role includes the ones before it.
type Role int

const (
	RoleUnknown Role = iota
	RoleRead         // read run history and reports
	RoleWrite        // start lint and reconcile runs
	RoleAdmin
)

func atoRole(s string) Role {
	switch strings.ToLower(s) {
	case "read":
		return RoleRead
	case "write":
		return RoleWrite
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// NewNobodyDecoder creates a TokenDecoder that for every possible token
// returns a user named "nobody" with the Admin role.
func NewNobodyDecoder() TokenDecoder {
	return nobodyDecoder{}
}

type nobodyDecoder struct{}

func (nobodyDecoder) TokenDecode(token string) (string, Role, error) {
	return "nobody", RoleAdmin, nil
}

// NewListDecoder reads a fixed list of users from r. Each line has the form
//
//	<user name>  <role>  <token>
//
// separated by spaces or tabs. The role is one of "Read", "Write" or
// "Admin" (case insensitive). Empty lines and lines beginning with a hash
// '#' are skipped, as are lines without exactly three fields.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	users := make(listDecoder)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		pieces := strings.Fields(scanner.Text())
		if len(pieces) != 3 || strings.HasPrefix(pieces[0], "#") {
			continue
		}
		users[pieces[2]] = userEntry{user: pieces[0], role: atoRole(pieces[1])}
	}
	return users, errors.WithStack(scanner.Err())
}

// NewListDecoderFile reads the users for a list decoder from a file.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	return NewListDecoder(f)
}

// listDecoder maps tokens to users.
type listDecoder map[string]userEntry

type userEntry struct {
	user string
	role Role
}

func (ld listDecoder) TokenDecode(token string) (string, Role, error) {
	if u, ok := ld[token]; ok && token != "" {
		return u.user, u.role, nil
	}
	return "", RoleUnknown, nil
}
