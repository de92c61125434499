package http

import (
	"net/http"

	"github.com/dkeye/classroom/internal/adapters/rtc"
	"github.com/dkeye/classroom/internal/adapters/signal"
	"github.com/dkeye/classroom/internal/app/orch"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	keySessionID = "sessionId"
	keyUserID    = "userId"
)

type handlers struct {
	orch *orch.Orchestrator
	ice  rtc.ICEConfig
}

type createSessionRequest struct {
	TeacherName string `json:"teacherName"`
	SessionName string `json:"sessionName"`
}

type joinSessionRequest struct {
	SessionID domain.SessionID `json:"sessionId"`
	UserName  string           `json:"userName"`
}

// sessionView adds the number of joined connections to the snapshot.
type sessionView struct {
	domain.SessionInfo
	Online int `json:"online"`
}

var statusByCode = map[domain.Code]int{
	domain.CodeInvalidInput:  http.StatusBadRequest,
	domain.CodeNotFound:      http.StatusNotFound,
	domain.CodeAlreadyExists: http.StatusConflict,
	domain.CodeAlreadyBound:  http.StatusConflict,
	domain.CodeIncompatible:  http.StatusUnprocessableEntity,
	domain.CodeEngineFailure: http.StatusBadGateway,
	domain.CodeRateLimited:   http.StatusTooManyRequests,
	domain.CodeInternal:      http.StatusInternalServerError,
}

func fail(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	ev := log.Warn()
	if status >= 500 {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Str("code", string(code)).Msg("request failed")
	c.JSON(status, gin.H{"success": false, "error": err.Error(), "code": code})
}

// remember stores the caller's identity so a later WS join may omit it.
func remember(c *gin.Context, sid domain.SessionID, uid domain.UserID) {
	s := sessions.Default(c)
	s.Set(keySessionID, string(sid))
	s.Set(keyUserID, string(uid))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save cookie session")
	}
}

func rememberedIdentity(c *gin.Context) signal.JoinDefaults {
	s := sessions.Default(c)
	sid, _ := s.Get(keySessionID).(string)
	uid, _ := s.Get(keyUserID).(string)
	return signal.JoinDefaults{SessionID: domain.SessionID(sid), UserID: domain.UserID(uid)}
}

func (h *handlers) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(domain.ErrInvalidInput, "invalid json body"))
		return
	}
	sid, teacher, err := h.orch.CreateSession(c.Request.Context(), req.TeacherName, req.SessionName)
	if err != nil {
		fail(c, err)
		return
	}
	info, err := h.orch.FindSession(sid)
	if err != nil {
		fail(c, err)
		return
	}
	remember(c, sid, teacher.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": sid,
		"userId":    teacher.ID,
		"name":      info.Name,
	})
}

func (h *handlers) joinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(domain.ErrInvalidInput, "invalid json body"))
		return
	}
	res, err := h.orch.JoinSession(c.Request.Context(), req.SessionID, req.UserName)
	if err != nil {
		fail(c, err)
		return
	}
	remember(c, req.SessionID, res.User.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": req.SessionID,
		"userId":    res.User.ID,
		"students":  res.Students,
		"live":      res.Live,
	})
}

func (h *handlers) getSession(c *gin.Context) {
	sid := domain.SessionID(c.Param("id"))
	info, err := h.orch.FindSession(sid)
	if err != nil {
		fail(c, err)
		return
	}
	online := 0
	if room, ok := h.orch.Rooms.Get(sid); ok {
		online = room.MemberCount()
	}
	c.JSON(http.StatusOK, sessionView{SessionInfo: info, Online: online})
}

func (h *handlers) activeSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": h.orch.ActiveSessions()})
}

func (h *handlers) routerCapabilities(c *gin.Context) {
	caps, err := h.orch.RouterCapabilities(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rtpCapabilities": caps})
}

func (h *handlers) iceServers(c *gin.Context) {
	servers, err := rtc.ICEServers(h.ice)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}
