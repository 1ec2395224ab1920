package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

const (
	contentType             = "application/json"
	CollectEndpoint         = "/hopper/v1/collect"
	defaultSendRecordAmount = 100
)

// CollectResponse is what the collection server answers to a batch.
type CollectResponse struct {
	Status      string `json:"status"`
	RecordCount int    `json:"recordCount"`
}

// Server POSTs batches of records as JSON to a hopper collection server.
type Server struct {
	URL               string
	SendRecordsAmount int
	// Client defaults to http.DefaultClient.
	Client  *http.Client
	Metrics *metrics.Collector
}

func (s *Server) Write(ctx context.Context, records <-chan sdr.Record) error {
	amount := defaultSendRecordAmount
	if s.SendRecordsAmount > 0 {
		amount = s.SendRecordsAmount
	}

	cnt := &counts{name: "server", metrics: s.Metrics}
	var batch []sdr.Record
	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := s.send(ctx, batch)
		if err != nil {
			glog.Warningf("error submitting %d records to %s: %s\n", len(batch), s.URL, err)
		}
		for range batch {
			cnt.record(err)
		}
		batch = nil
	}

	for r := range records {
		batch = append(batch, r)
		if len(batch) < amount {
			continue // not enough records for a batch yet
		}
		flush()
	}
	flush()

	return nil
}

func (s *Server) send(ctx context.Context, batch []sdr.Record) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("error marshalling records to JSON: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.URL, "/")+CollectEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	cr := CollectResponse{}
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	glog.V(1).Infof("submitted %d records to server %s", cr.RecordCount, s.URL)
	return nil
}
