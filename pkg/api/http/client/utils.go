package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	ie "github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
)

// statusErrors maps response codes back to the error the server saw
var statusErrors = map[int]error{
	http.StatusBadRequest: ie.ErrValidation,
	http.StatusNotFound:   ie.ErrNotFound,
	http.StatusConflict:   ie.ErrInvalidState,
}

// genericSend is a helper to POST / PATCH / DELETE data to a given URL and unmarshal the response
func genericSend(method string, addr *url.URL, in interface{}, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, addr.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return readResponse(resp, out)
}

// genericGet is a helper to GET data from a given URL and unmarshal the response.
// Implies the Query string is already set, if needed.
func genericGet(addr *url.URL, out interface{}) error {
	resp, err := http.Get(addr.String())
	if err != nil {
		return err
	}
	return readResponse(resp, out)
}

func readResponse(resp *http.Response, out interface{}) error {
	if resp.Body == nil { // there is no data to read
		if resp.StatusCode >= 400 {
			return statusError(resp.StatusCode, "")
		}
		return nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 { // some error code, assume message is error message
		return statusError(resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	return json.Unmarshal(body, out)
}

func statusError(code int, msg string) error {
	known, ok := statusErrors[code]
	if ok {
		return fmt.Errorf("%w (status code %d) %s", known, code, msg)
	}
	return fmt.Errorf("bad status code %d, returned %s", code, msg)
}

// setQueryString sets the query string of a URL based on the given query object.
func setQueryString(u *url.URL, q *structs.Query) {
	if q == nil {
		q = &structs.Query{}
	}
	q.Sanitize()
	values := u.Query()

	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.DueBy > 0 {
		values.Set("due_by", strconv.FormatInt(q.DueBy, 10))
	}
	if q.JobIDs != nil {
		values["job_ids"] = q.JobIDs
	}
	if q.BatchIDs != nil {
		values["batch_ids"] = q.BatchIDs
	}
	if q.Statuses != nil {
		ss := []string{}
		for _, s := range q.Statuses {
			ss = append(ss, string(s))
		}
		values["statuses"] = ss
	}
	if q.CompileStatuses != nil {
		ss := []string{}
		for _, s := range q.CompileStatuses {
			ss = append(ss, string(s))
		}
		values["compile_statuses"] = ss
	}

	u.RawQuery = values.Encode()
}
