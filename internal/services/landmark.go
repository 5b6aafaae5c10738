package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"DROWSY_MONITOR/go-detector/internal/models"
)

// LandmarkClient consumes the external face/landmark service. Frames arrive
// as JSON packets over a WebSocket stream: zero or more (face_id, ear)
// readings per frame. Pixels and eye geometry never cross this boundary.
//
// The service also exposes the standard gRPC health service; HealthCheck
// probes it when a health address is configured.
type LandmarkClient struct {
	url        string
	conn       *websocket.Conn
	healthConn *grpc.ClientConn
}

// NewLandmarkClient dials the landmark service. healthAddr may be empty, in
// which case HealthCheck always reports false.
func NewLandmarkClient(ctx context.Context, url, healthAddr string) (*LandmarkClient, error) {
	log.Printf("Connecting to landmark service at %s", url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not connect to landmark service at %s: %w", url, err)
	}

	c := &LandmarkClient{url: url, conn: conn}

	if healthAddr != "" {
		opts := []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                10 * time.Second,
				Timeout:             3 * time.Second,
				PermitWithoutStream: true,
			}),
		}
		healthConn, err := grpc.Dial(healthAddr, opts...)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("could not connect to landmark health endpoint at %s: %w", healthAddr, err)
		}
		c.healthConn = healthConn
	}

	log.Printf("Connected to landmark service at %s", url)
	return c, nil
}

// ReadFrame blocks until the next frame packet arrives. A normal close by
// the landmark service reads as io.EOF: the stream is over, not broken.
func (c *LandmarkClient) ReadFrame() (*models.FramePacket, error) {
	var packet models.FramePacket
	if err := c.conn.ReadJSON(&packet); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("could not read frame packet: %w", err)
	}
	return &packet, nil
}

// SetReadDeadline bounds the next ReadFrame call.
func (c *LandmarkClient) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *LandmarkClient) HealthCheck() bool {
	if c.healthConn == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.healthConn).Check(ctx, &healthpb.HealthCheckRequest{})
	return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
}

func (c *LandmarkClient) Close() error {
	if c.healthConn != nil {
		c.healthConn.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
