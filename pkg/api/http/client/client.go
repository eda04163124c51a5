package client

import (
	"net/http"
	"net/url"

	"github.com/voidshard/flashd/pkg/api/http/common"
	"github.com/voidshard/flashd/pkg/structs"
)

type Client struct {
	url *url.URL
}

func New(address string) (*Client, error) {
	u, err := url.Parse(address)
	return &Client{url: u}, err
}

func (c *Client) CreateJob(cjr *structs.CreateJobRequest) (*structs.Job, error) {
	addr := c.addr(common.API_JOBS)
	var out structs.Job
	return &out, genericSend(http.MethodPost, addr, cjr, &out)
}

func (c *Client) Jobs(q *structs.Query) ([]*structs.Job, error) {
	addr := c.addr(common.API_JOBS)
	setQueryString(addr, q)
	var out []*structs.Job
	return out, genericGet(addr, &out)
}

func (c *Client) Job(id string) (*structs.Job, error) {
	addr := c.addr(common.WithID(common.API_JOB, id))
	var out structs.Job
	return &out, genericGet(addr, &out)
}

func (c *Client) DeleteJob(id string) error {
	addr := c.addr(common.WithID(common.API_JOB, id))
	var out common.UpdateResponse
	return genericSend(http.MethodDelete, addr, nil, &out)
}

func (c *Client) Reschedule(id string, req *structs.RescheduleRequest) (*structs.Job, error) {
	addr := c.addr(common.WithID(common.API_JOB_SCHEDULE, id))
	var out structs.Job
	return &out, genericSend(http.MethodPatch, addr, req, &out)
}

func (c *Client) CreateBatch(req *structs.CreateBatchRequest) (*structs.Batch, error) {
	addr := c.addr(common.API_BATCHES)
	var out structs.Batch
	return &out, genericSend(http.MethodPost, addr, req, &out)
}

func (c *Client) Batches(q *structs.Query) ([]*structs.Batch, error) {
	addr := c.addr(common.API_BATCHES)
	setQueryString(addr, q)
	var out []*structs.Batch
	return out, genericGet(addr, &out)
}

func (c *Client) AddToBatch(batchID string, req *structs.AddToBatchRequest) (int64, error) {
	addr := c.addr(common.WithID(common.API_BATCH_JOBS, batchID))
	var out common.UpdateResponse
	err := genericSend(http.MethodPost, addr, req, &out)
	return out.Updated, err
}

func (c *Client) BatchJobs(batchID string) ([]*structs.Job, error) {
	addr := c.addr(common.WithID(common.API_BATCH_JOBS, batchID))
	var out []*structs.Job
	return out, genericGet(addr, &out)
}

func (c *Client) addr(path string) *url.URL {
	return &url.URL{Scheme: c.url.Scheme, Host: c.url.Host, Path: path}
}
