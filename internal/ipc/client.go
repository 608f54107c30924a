package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call("VManga."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// FileOpen starts tracking a spreadsheet and makes it active.
func (c *Client) FileOpen(path string) (*FileResponse, error) {
	return call[FileResponse](c, "FileOpen", FileRequest{Path: path})
}

// FileClose stops tracking a spreadsheet.
func (c *Client) FileClose(path string) error {
	_, err := call[AckResponse](c, "FileClose", FileRequest{Path: path})
	return err
}

// FileList lists tracked spreadsheets.
func (c *Client) FileList() (*FileListResponse, error) {
	return call[FileListResponse](c, "FileList", FileListRequest{})
}

// FileShow returns one spreadsheet with its jobs. An empty path selects the
// active spreadsheet.
func (c *Client) FileShow(path string) (*FileResponse, error) {
	return call[FileResponse](c, "FileShow", FileRequest{Path: path})
}

// FileActivate selects a tracked spreadsheet.
func (c *Client) FileActivate(path string) error {
	_, err := call[AckResponse](c, "FileActivate", FileRequest{Path: path})
	return err
}

// FileRescan forces a refresh cycle.
func (c *Client) FileRescan(path string) error {
	_, err := call[AckResponse](c, "FileRescan", FileRequest{Path: path})
	return err
}

// JobRetry clears one job's status.
func (c *Client) JobRetry(path, jobID string) error {
	_, err := call[AckResponse](c, "JobRetry", JobRequest{Path: path, JobID: jobID})
	return err
}

// JobResetIncomplete clears every job that is not completed.
func (c *Client) JobResetIncomplete(path string) (int, error) {
	resp, err := call[JobResetIncompleteResponse](c, "JobResetIncomplete", FileRequest{Path: path})
	if err != nil {
		return 0, err
	}
	return resp.Reset, nil
}

// JobDeleteResult deletes a result file and clears the job's status.
func (c *Client) JobDeleteResult(req JobDeleteResultRequest) error {
	_, err := call[AckResponse](c, "JobDeleteResult", req)
	return err
}

// JobLink records an existing file as a job's result.
func (c *Client) JobLink(req JobLinkRequest) error {
	_, err := call[AckResponse](c, "JobLink", req)
	return err
}

// WatchdogSweep runs one stuck-job pass.
func (c *Client) WatchdogSweep() (*WatchdogSweepResponse, error) {
	return call[WatchdogSweepResponse](c, "WatchdogSweep", WatchdogSweepRequest{})
}

// Stats returns completion totals and per-day history.
func (c *Client) Stats(days int) (*StatsResponse, error) {
	return call[StatsResponse](c, "Stats", StatsRequest{Days: days})
}

// StatsClear drops recorded completions for day, or all of them when day is
// empty.
func (c *Client) StatsClear(day string) (int, error) {
	resp, err := call[StatsClearResponse](c, "StatsClear", StatsClearRequest{Day: day})
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// LicenseStatus reports the activation gate.
func (c *Client) LicenseStatus() (*LicenseResponse, error) {
	return call[LicenseResponse](c, "LicenseStatus", LicenseStatusRequest{})
}

// LicenseActivate stores a license key for this machine.
func (c *Client) LicenseActivate(key string) (*LicenseResponse, error) {
	return call[LicenseResponse](c, "LicenseActivate", LicenseActivateRequest{Key: key})
}

// TestNotification sends a test notification through the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
