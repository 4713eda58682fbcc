package worker

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
	"github.com/kbukum/meshflow/version"
)

// fetch runs the requested dataset for the posted contract and answers with
// one frame.
func (s *Server) fetch(c *gin.Context) {
	limit := s.config.MaxRequestBytes
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		s.fail(c, errors.TransportFailure("request body", err))
		return
	}
	if int64(len(body)) > limit {
		s.fail(c, errors.ResourceExhausted("request body", int64(len(body)), limit))
		return
	}
	req, con, err := codec.UnmarshalRequest(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	p, ok := s.dataset(req.Dataset)
	if !ok {
		s.fail(c, errors.NotFound("dataset", req.Dataset))
		return
	}

	ctx := flow.WithPassInfo(c.Request.Context(), flow.PassInfo{
		PipelineIndex: con.PipelineIndex(),
		Pass:          req.Pass,
		Rank:          req.Rank,
		Ranks:         1,
		Domains:       con.Domains(),
		Contract:      con,
	})
	var buf bytes.Buffer
	err = s.bulkhead.Execute(ctx, func() error {
		obj, err := p.Update(ctx, con)
		if err != nil {
			return err
		}
		defer obj.Release()
		return s.codec.Encode(&buf, obj)
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.log.Debug("served", logger.Fields(
		"dataset", req.Dataset,
		logger.FieldRank, req.Rank,
		logger.FieldPass, req.Pass,
		"bytes", buf.Len(),
	))
	c.Data(http.StatusOK, codec.ContentType, buf.Bytes())
}

// fail answers with an error frame; the status mirrors the error kind.
func (s *Server) fail(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Internal(err)
	}
	s.log.Warn("fetch failed", logger.Fields(
		"code", appErr.Code,
		logger.FieldError, appErr.Error(),
	))
	var buf bytes.Buffer
	if encErr := s.codec.EncodeError(&buf, appErr); encErr != nil {
		c.JSON(appErr.HTTPStatus, appErr.ToResponse())
		return
	}
	c.Data(appErr.HTTPStatus, codec.ContentType, buf.Bytes())
}

// health reports the fetch slots and, when configured, the hosting process.
// A worker that is down answers 503.
func (s *Server) health(c *gin.Context) {
	sh := observability.NewServiceHealth("meshflow-worker", version.GetShortVersion())
	status, msg := s.state()
	sh.AddComponent(observability.Health{
		Name:    "fetch",
		Status:  observability.StatusOf(string(status)),
		Message: msg,
		Details: map[string]string{
			"in_use":   strconv.Itoa(s.bulkhead.InUse()),
			"slots":    strconv.Itoa(s.bulkhead.MaxConcurrent()),
			"datasets": strconv.Itoa(len(s.Datasets())),
		},
	})
	if s.checks != nil {
		for _, h := range s.checks(c.Request.Context()) {
			sh.AddComponent(h)
		}
	}
	code := http.StatusOK
	if sh.Status == observability.HealthStatusDown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, sh)
}

func (s *Server) info(c *gin.Context) {
	v := version.GetVersionInfo()
	c.JSON(http.StatusOK, gin.H{
		"version":    v.Version,
		"git_commit": v.GitCommit,
		"go_version": v.GoVersion,
		"datasets":   s.Datasets(),
		"uptime":     time.Since(s.started).String(),
	})
}
