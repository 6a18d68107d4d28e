package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
)

type WiFiServer struct {
	ap       *negotiation.AccessPoint
	switches func() int
	limiter  *rate.Limiter
}

// NewWiFiServer builds the remote domain's REST server. switches reports
// how many datapaths the WiFi side controls; nil means none.
func NewWiFiServer(ap *negotiation.AccessPoint, switches func() int, limiter *rate.Limiter) *WiFiServer {
	if switches == nil {
		switches = func() int { return 0 }
	}
	return &WiFiServer{ap: ap, switches: switches, limiter: limiter}
}

func (s *WiFiServer) Router() *gin.Engine {
	r := newEngine("wifi", s.limiter)
	r.GET(constants.PathLoad, s.getLoad)
	r.GET(constants.PathLegacyLoad, s.getLegacyLoad)
	r.POST(constants.PathConfirm, s.postConfirm)
	r.GET(constants.PathWiFiStatus, s.getStatus)
	r.POST(constants.PathClients, s.postClients)
	r.DELETE(constants.PathSessions+"/:ue", s.deleteSession)
	r.GET(constants.PathMetrics, gin.WrapH(promhttp.Handler()))
	r.GET(constants.PathHealth, healthz)
	return r
}

func (s *WiFiServer) getLoad(c *gin.Context) {
	c.JSON(http.StatusOK, s.ap.LoadResponse())
}

func (s *WiFiServer) getLegacyLoad(c *gin.Context) {
	c.JSON(http.StatusOK, s.ap.LegacyLoad())
}

// postConfirm always answers with a ConfirmResponse body so the peer can
// read the reason whatever the status code.
func (s *WiFiServer) postConfirm(c *gin.Context) {
	var req apis.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apis.ConfirmResponse{Success: false, Reason: "malformed_request"})
		return
	}
	resp := s.ap.Confirm(req)
	c.JSON(confirmStatus(resp), resp)
}

func confirmStatus(resp apis.ConfirmResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.Reason {
	case constants.NegotiationCapacityExceeded:
		return http.StatusConflict
	case constants.NegotiationUnknownUE, constants.NegotiationInvalidCredentials:
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func (s *WiFiServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ap.Status(s.switches()))
}

func (s *WiFiServer) postClients(c *gin.Context) {
	var upd apis.ClientsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if upd.Count < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must not be negative"})
		return
	}
	s.ap.SetClients(upd.Count)
	c.JSON(http.StatusOK, s.ap.LegacyLoad())
}

func (s *WiFiServer) deleteSession(c *gin.Context) {
	ue := c.Param("ue")
	if !s.ap.Release(ue) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no grant for " + ue})
		return
	}
	klog.Infof("Released grant of %s", ue)
	c.Status(http.StatusNoContent)
}
