package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/voidshard/flashd/internal/utils"
	ie "github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
)

var (
	errmap map[int][]error = map[int][]error{
		http.StatusBadRequest: []error{
			ie.ErrValidation,
			ie.ErrInvalidArg,
		},
		http.StatusNotFound: []error{
			ie.ErrNotFound,
		},
		http.StatusConflict: []error{
			ie.ErrInvalidState,
		},
	}
)

// mapError returns the http status code for a given error from flashd, or
// http.StatusInternalServerError if the error is not recognised.
func mapError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for code, errs := range errmap {
		for _, e := range errs {
			if errors.Is(err, e) {
				return code
			}
		}
	}
	return http.StatusInternalServerError
}

// pathID returns the {id} of the route, writing an error if it isn't valid
func pathID(w http.ResponseWriter, r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	if !utils.IsValidID(id) {
		http.Error(w, "bad id", http.StatusBadRequest)
		return "", fmt.Errorf("bad id: %v", id)
	}
	return id, nil
}

func unmarshalQuery(w http.ResponseWriter, r *http.Request, out *structs.Query) error {
	q := r.URL.Query()

	ints := map[string]*int{"limit": &out.Limit, "offset": &out.Offset}
	for name, field := range ints {
		if !q.Has(name) {
			continue
		}
		v, err := strconv.Atoi(q.Get(name))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return fmt.Errorf("bad %s: %v", name, err)
		}
		*field = v
	}

	if q.Has("due_by") {
		due, err := strconv.ParseInt(q.Get("due_by"), 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return fmt.Errorf("bad due_by: %v", err)
		}
		out.DueBy = due
	}

	ids := map[string]*[]string{"job_ids": &out.JobIDs, "batch_ids": &out.BatchIDs}
	for name, field := range ids {
		if !q.Has(name) {
			continue
		}
		*field = q[name]
		for _, id := range *field {
			if !utils.IsValidID(id) {
				http.Error(w, "bad id in "+name, http.StatusBadRequest)
				return fmt.Errorf("bad id: %v", id)
			}
		}
	}

	if q.Has("statuses") {
		out.Statuses = []structs.Status{}
		for _, s := range q["statuses"] {
			st := structs.ToStatus(s)
			if st == "" {
				http.Error(w, "bad status", http.StatusBadRequest)
				return fmt.Errorf("bad status: %v", s)
			}
			out.Statuses = append(out.Statuses, st)
		}
	}
	if q.Has("compile_statuses") {
		out.CompileStatuses = []structs.CompileStatus{}
		for _, s := range q["compile_statuses"] {
			st := structs.ToCompileStatus(s)
			if st == "" {
				http.Error(w, "bad compile status", http.StatusBadRequest)
				return fmt.Errorf("bad compile status: %v", s)
			}
			out.CompileStatuses = append(out.CompileStatuses, st)
		}
	}

	out.Sanitize()
	return nil
}

// unmarshalJson reads the body of a request and attempts to unmarshal it into the given object.
// This function write an error to the writer if an error occurs, and returns the error.
func unmarshalJson(w http.ResponseWriter, r *http.Request, obj interface{}) error {
	if r.Body == nil {
		http.Error(w, "No body", http.StatusBadRequest)
		return fmt.Errorf("no body")
	}
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields() // catch unwanted fields

	err := d.Decode(obj)
	if err != nil {
		// bad JSON or unrecognized json field
		http.Error(w, err.Error(), http.StatusBadRequest)
		return fmt.Errorf("bad json: %v", err)
	}

	return nil
}

func writeJson(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
