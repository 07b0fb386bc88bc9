// Package client talks to a prsvcheck server. A Connection can ask the
// server to lint packages or reconcile two locations, and read back the
// history of past runs.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// Exported errors
var (
	ErrNotFound       = errors.New("not found on server")
	ErrNotAuthorized  = errors.New("access denied")
	ErrForbidden      = errors.New("path is not beneath an allowed root")
	ErrBadRequest     = errors.New("bad request")
	ErrUnexpectedResp = errors.New("unexpected response code")
)

// A Connection represents a connection with a prsvcheck server.
// It can be shared between multiple goroutines.
type Connection struct {
	// The server this connection is to, e.g. http://localhost:14000
	HostURL string

	// Token is sent as the API key, if not empty.
	Token string

	// Retries is how many more times a GET is tried after a server error.
	Retries int

	client *http.Client
}

// RetryDelay is how long to wait before retrying a failed GET.
var RetryDelay = 2 * time.Second

// do performs an http request using our client with a timeout. The
// timeout is there so we don't hang should the server never close the
// connection. Reconciliations of large locations take a while.
func (c *Connection) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("X-Api-Key", c.Token)
	}
	if c.client == nil {
		c.client = &http.Client{
			Timeout: 2 * time.Hour,
		}
	}
	return c.client.Do(req)
}

// get performs a GET, retrying on server errors.
func (c *Connection) get(path string) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)
	for i := 0; i <= c.Retries; i++ {
		if i > 0 {
			time.Sleep(RetryDelay)
		}
		var req *http.Request
		req, err = http.NewRequest("GET", c.HostURL+path, nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err = c.do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			err = statusError(resp)
			resp.Body.Close()
		}
		log.Printf("GET %s: %s", path, err)
	}
	return nil, err
}

// post sends body as JSON and decodes the response into v.
func (c *Connection) post(path string, body, v interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.WithStack(err)
	}
	req, err := http.NewRequest("POST", c.HostURL+path, bytes.NewReader(buf))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return statusError(resp)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(v), "decode %s", path)
}

func (c *Connection) getJSON(path string, v interface{}) error {
	resp, err := c.get(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return statusError(resp)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(v), "decode %s", path)
}

func (c *Connection) doJasonGet(path string) (*jason.Object, error) {
	resp, err := c.get(path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, statusError(resp)
	}
	return jason.NewObjectFromReader(resp.Body)
}

// statusError turns a response code into one of the exported errors,
// carrying the message the server sent.
func statusError(resp *http.Response) error {
	text, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(text))
	var err error
	switch resp.StatusCode {
	case 400:
		err = ErrBadRequest
	case 401:
		err = ErrNotAuthorized
	case 403:
		err = ErrForbidden
	case 404:
		err = ErrNotFound
	default:
		err = errors.Wrap(ErrUnexpectedResp, fmt.Sprintf("status %d", resp.StatusCode))
	}
	if msg != "" {
		err = errors.Wrap(err, msg)
	}
	return err
}
