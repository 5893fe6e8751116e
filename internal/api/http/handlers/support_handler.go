package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lumora/supportdesk/internal/api/dto"
	"github.com/lumora/supportdesk/internal/auth"
	"github.com/lumora/supportdesk/internal/domain"
	"github.com/lumora/supportdesk/internal/service"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

// SupportHandler serves the support thread endpoints: list and detail on
// GET, an action-tagged dispatcher on POST.
type SupportHandler struct {
	service *service.SupportService
}

// NewSupportHandler constructs handler.
func NewSupportHandler(supportService *service.SupportService) *SupportHandler {
	return &SupportHandler{service: supportService}
}

// Get GET /support. Without thread_id it returns the thread list; with
// thread_id it returns that thread's full log and marks it read.
func (h *SupportHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	viewer := principal.User

	if raw := c.Query("thread_id"); raw != "" {
		threadID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || threadID <= 0 {
			return apperrors.NewValidationError("invalid thread_id", nil)
		}
		log, err := h.service.GetThreadLog(c.UserContext(), viewer, threadID)
		if err != nil {
			return err
		}
		resp := dto.ThreadLogResponse{
			Thread:   dto.FromThread(log.Thread),
			Messages: dto.FromMessages(log.Messages),
		}
		if len(log.ArtistReleases) > 0 {
			resp.ArtistReleases = dto.FromReleases(log.ArtistReleases)
		}
		return c.JSON(resp)
	}

	var status *domain.ThreadStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.ThreadStatus(raw)
		status = &s
	}

	summaries, err := h.service.ListThreads(c.UserContext(), viewer, status)
	if err != nil {
		return err
	}

	// An artist landing on an empty inbox gets their first thread opened
	// for them; concurrent first requests converge on a single thread.
	if len(summaries) == 0 && !viewer.Role.IsStaff() {
		if _, _, err := h.service.EnsureArtistThread(c.UserContext(), viewer); err != nil {
			return err
		}
		summaries, err = h.service.ListThreads(c.UserContext(), viewer, nil)
		if err != nil {
			return err
		}
	}

	return c.JSON(dto.ThreadListResponse{Threads: dto.FromThreadSummaries(summaries)})
}

// UnreadCount GET /support/unread_count.
func (h *SupportHandler) UnreadCount(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	total, err := h.service.UnreadTotal(c.UserContext(), principal.User)
	if err != nil {
		return err
	}
	return c.JSON(dto.UnreadResponse{UnreadCount: total})
}

// Post POST /support. The payload carries an action discriminator; the
// rest of the body is decoded per action.
func (h *SupportHandler) Post(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	actor := principal.User

	var envelope dto.Envelope
	if err := c.BodyParser(&envelope); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	switch envelope.Action {
	case dto.ActionCreateThread:
		return h.createThread(c, actor)
	case dto.ActionSendMessage:
		return h.sendMessage(c, actor)
	case dto.ActionUpdateStatus:
		return h.updateStatus(c, actor)
	case dto.ActionUpdatePriority:
		return h.updatePriority(c, actor)
	case dto.ActionAssignThread:
		return h.assignThread(c, actor)
	case dto.ActionAttachRelease:
		return h.attachRelease(c, actor)
	case dto.ActionRateThread:
		return h.rateThread(c, actor)
	case dto.ActionGetArtists:
		return h.getArtists(c, actor)
	case dto.ActionGetUserReleases:
		return h.getUserReleases(c, actor)
	case "":
		return apperrors.NewValidationError("action required", nil)
	default:
		return apperrors.NewValidationError("unknown action", map[string]any{"action": envelope.Action})
	}
}

func (h *SupportHandler) createThread(c *fiber.Ctx, actor *domain.User) error {
	var req dto.CreateThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	thread, err := h.service.CreateThread(c.UserContext(), actor, service.CreateThreadInput{
		ArtistID:       req.ArtistID,
		Subject:        req.Subject,
		Priority:       domain.ThreadPriority(req.Priority),
		InitialMessage: req.Message,
		ReleaseID:      req.ReleaseID,
		TrackID:        req.TrackID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromThread(thread))
}

func (h *SupportHandler) sendMessage(c *fiber.Ctx, actor *domain.User) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	msg, err := h.service.SendMessage(c.UserContext(), actor, service.SendMessageInput{
		ThreadID:       req.ThreadID,
		Body:           req.Message,
		AttachmentURL:  req.AttachmentURL,
		AttachmentName: req.AttachmentName,
		AttachmentSize: req.AttachmentSize,
		ReleaseID:      req.ReleaseID,
		TrackID:        req.TrackID,
		InternalNote:   req.InternalNote,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromMessage(msg))
}

func (h *SupportHandler) updateStatus(c *fiber.Ctx, actor *domain.User) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	thread, err := h.service.UpdateStatus(c.UserContext(), actor, req.ThreadID, domain.ThreadStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromThread(thread))
}

func (h *SupportHandler) updatePriority(c *fiber.Ctx, actor *domain.User) error {
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	thread, err := h.service.UpdatePriority(c.UserContext(), actor, req.ThreadID, domain.ThreadPriority(req.Priority))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromThread(thread))
}

func (h *SupportHandler) assignThread(c *fiber.Ctx, actor *domain.User) error {
	var req dto.AssignThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	thread, err := h.service.AssignThread(c.UserContext(), actor, req.ThreadID, req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromThread(thread))
}

func (h *SupportHandler) attachRelease(c *fiber.Ctx, actor *domain.User) error {
	var req dto.AttachReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	thread, err := h.service.AttachRelease(c.UserContext(), actor, service.AttachReleaseInput{
		ThreadID:  req.ThreadID,
		ReleaseID: req.ReleaseID,
		TrackID:   req.TrackID,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromThread(thread))
}

func (h *SupportHandler) rateThread(c *fiber.Ctx, actor *domain.User) error {
	var req dto.RateThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	thread, err := h.service.RateThread(c.UserContext(), actor, req.ThreadID, req.Rating)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromThread(thread))
}

func (h *SupportHandler) getArtists(c *fiber.Ctx, actor *domain.User) error {
	artists, err := h.service.ListArtists(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"artists": dto.FromArtists(artists)})
}

func (h *SupportHandler) getUserReleases(c *fiber.Ctx, actor *domain.User) error {
	releases, tracks, err := h.service.ListOwnReleases(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(dto.CatalogResponse{
		Releases: dto.FromReleases(releases),
		Tracks:   dto.FromTracks(tracks),
	})
}
