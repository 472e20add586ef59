package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hwshim/internal/core"
	"hwshim/internal/storage"
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Service объединяет общий пайплайн command->authz->ratelimit->core->audit.
type Service struct {
	Source      string
	Registry    *core.Registry
	Authorizer  core.Authorizer
	RateLimiter *RateLimiter
	AuditSink   storage.AuditSink
	Logger      *slog.Logger
}

// ExecuteText парсит текстовую команду транспорта и вызывает core-модуль.
func (s *Service) ExecuteText(ctx context.Context, subjectID, text string) (core.Response, error) {
	module, command, args, err := ParseTextCommand(text)
	if err != nil {
		return core.Fail("bad_command"), err
	}
	return s.Execute(ctx, subjectID, module, command, args)
}

// Execute выполняет уже разобранную команду от имени subjectID.
func (s *Service) Execute(ctx context.Context, subjectID, module, command string, args []string) (core.Response, error) {
	requestID := RequestID(ctx)
	subject := core.Subject{Source: s.Source, ID: subjectID}
	action := core.Action{Module: module, Command: command}

	if s.Authorizer != nil {
		if err := s.Authorizer.Authorize(subject, action); err != nil {
			s.writeAudit(ctx, requestID, subject, action, "denied", args, "access_denied")
			return core.Fail("access_denied"), err
		}
	}
	if s.RateLimiter != nil {
		if ok, wait := s.RateLimiter.Reserve(s.Source+":"+subjectID, time.Now()); !ok {
			s.writeAudit(ctx, requestID, subject, action, "rate_limited", args, "rate_limited")
			return core.Fail("rate_limited"), fmt.Errorf("retry after %s: %w", wait.Round(time.Millisecond), ErrRateLimited)
		}
	}

	resp, execErr := s.Registry.Execute(ctx, module, command, args)
	status := core.StatusOK
	if execErr != nil || resp.Status == core.StatusError {
		status = core.StatusError
	}
	s.writeAudit(ctx, requestID, subject, action, status, args, resp.ErrorCode)
	if s.Logger != nil {
		s.Logger.Info("command executed",
			"request_id", requestID, "source", s.Source, "subject", subjectID,
			"module", module, "command", command, "status", status)
	}
	return resp, execErr
}

func (s *Service) writeAudit(ctx context.Context, requestID string, subject core.Subject, action core.Action, status string, args []string, errorCode string) {
	if s.AuditSink == nil {
		return
	}
	err := s.AuditSink.Write(ctx, storage.AuditEvent{
		Subject:   subject.ID,
		Action:    fmt.Sprintf("%s:%s", action.Module, action.Command),
		Source:    subject.Source,
		Status:    status,
		RequestID: requestID,
		Payload:   buildAuditPayload(action.Module, action.Command, args, errorCode),
	})
	if err != nil && s.Logger != nil {
		s.Logger.Warn("audit write failed", "request_id", requestID, "error", err)
	}
}

// ParseTextCommand переводит текст в (module, command, args).
// Формат: /module command arg1 arg2
func ParseTextCommand(text string) (string, string, []string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", "", nil, ErrEmptyCommand
	}
	t = strings.TrimPrefix(t, "/")
	parts := strings.Fields(t)
	if len(parts) < 2 {
		return "", "", nil, fmt.Errorf("invalid command format: %w", ErrEmptyCommand)
	}
	module := parts[0]
	command := parts[1]
	args := []string{}
	if len(parts) > 2 {
		args = parts[2:]
	}
	return module, command, args, nil
}
