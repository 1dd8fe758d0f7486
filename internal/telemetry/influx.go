// Package telemetry provides optional time-series metrics (InfluxDB) and
// lifetime statistics persistence (Redis) for the mining engine. Every sink
// is optional: the engine runs unchanged when none is configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mkrell/gosolo/pkg/log"
)

// InfluxConfig holds InfluxDB connection configuration
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxClient wraps InfluxDB operations for mining time-series metrics
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *log.Logger
}

// NewInfluxClient creates an InfluxDB client and verifies connectivity
func NewInfluxClient(cfg *InfluxConfig, logger *log.Logger) (*InfluxClient, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger.WithComponent("influx"),
	}, nil
}

// Close flushes buffered points and closes the connection
func (c *InfluxClient) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *InfluxClient) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}
	return nil
}

// WriteHashrate writes a hashrate measurement. The write API is
// asynchronous; failures surface through the API's error channel.
func (c *InfluxClient) WriteHashrate(totalHashes uint64, hashrate float64, rotations uint64) {
	fields := map[string]interface{}{
		"hashrate":     hashrate,
		"total_hashes": int64(totalHashes),
		"rotations":    int64(rotations),
	}

	point := write.NewPoint("hashrate", nil, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteShare writes a share submission metric
func (c *InfluxClient) WriteShare(jobID, nonce string, accepted bool) {
	tags := map[string]string{
		"job_id":   jobID,
		"accepted": fmt.Sprintf("%t", accepted),
	}

	fields := map[string]interface{}{
		"nonce": nonce,
		"count": 1,
	}

	point := write.NewPoint("shares", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteBlockFound writes a block discovery metric
func (c *InfluxClient) WriteBlockFound(jobID, blockHash string, leadingZeros int) {
	tags := map[string]string{
		"job_id": jobID,
		"hash":   blockHash,
	}

	fields := map[string]interface{}{
		"leading_zeros": leadingZeros,
		"count":         1,
	}

	point := write.NewPoint("blocks", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
