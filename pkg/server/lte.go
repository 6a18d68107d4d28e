// Package server exposes the REST boundary of both controllers.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/controller"
)

// ControlPlane is what the LTE server needs from the controller.
type ControlPlane interface {
	Submit(ev controller.Event) bool
	Status() apis.StatusSnapshot
}

// TelemetrySink accepts reports from mobile nodes.
type TelemetrySink interface {
	Ingest(node string, r apis.TelemetryReport)
}

type LTEServer struct {
	ctrl    ControlPlane
	tel     TelemetrySink
	hub     *Hub
	node    string
	limiter *rate.Limiter
}

// NewLTEServer builds the offloading controller's REST server. Reports
// without a node name are attributed to defaultNode. hub may be nil, in
// which case the status stream is not mounted.
func NewLTEServer(
	ctrl ControlPlane,
	tel TelemetrySink,
	hub *Hub,
	defaultNode string,
	limiter *rate.Limiter,
) *LTEServer {
	return &LTEServer{
		ctrl:    ctrl,
		tel:     tel,
		hub:     hub,
		node:    defaultNode,
		limiter: limiter,
	}
}

func (s *LTEServer) Router() *gin.Engine {
	r := newEngine("lte", s.limiter)
	r.POST(constants.PathTelemetry, s.postTelemetry)
	r.GET(constants.PathStatus, s.getStatus)
	if s.hub != nil {
		r.GET(constants.PathStatusStream, s.streamStatus)
	}
	r.POST(constants.PathPacketIn, s.postPacketIn)
	r.POST(constants.PathSwitchConnect, s.postSwitchConnected)
	r.GET(constants.PathMetrics, gin.WrapH(promhttp.Handler()))
	r.GET(constants.PathHealth, healthz)
	return r
}

func (s *LTEServer) postTelemetry(c *gin.Context) {
	var report apis.TelemetryReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node := report.Node
	if node == "" {
		node = s.node
	}
	s.tel.Ingest(node, report)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node": node})
}

func (s *LTEServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *LTEServer) streamStatus(c *gin.Context) {
	snap := s.ctrl.Status()
	s.hub.ServeWS(c, &StreamMessage{Type: "status", Timestamp: snap.Timestamp, Data: snap})
}

func (s *LTEServer) postPacketIn(c *gin.Context) {
	var pkt controller.PacketIn
	if err := c.ShouldBindJSON(&pkt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.submit(c, pkt)
}

func (s *LTEServer) postSwitchConnected(c *gin.Context) {
	var ev controller.SwitchConnected
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.submit(c, ev)
}

func (s *LTEServer) submit(c *gin.Context, ev controller.Event) {
	if !s.ctrl.Submit(ev) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event queue full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
