package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lumora/supportdesk/internal/domain"
	"github.com/lumora/supportdesk/internal/events"
	"github.com/lumora/supportdesk/internal/repository"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

var (
	artist = &domain.User{ID: 1, Username: "nova", FullName: "Nova Ray", Role: domain.RoleArtist}
	rival  = &domain.User{ID: 4, Username: "echo", FullName: "Echo Lin", Role: domain.RoleArtist}
	staff  = &domain.User{ID: 2, Username: "mgr", FullName: "Mara Voss", Role: domain.RoleManager}
	boss   = &domain.User{ID: 3, Username: "dir", FullName: "Dana Holt", Role: domain.RoleDirector}
)

func newTestService(t *testing.T) (*SupportService, *repository.MemoryStore) {
	t.Helper()
	mem := repository.NewMemoryStore()
	for _, u := range []*domain.User{artist, rival, staff, boss} {
		mem.SeedUser(*u)
	}
	mem.SeedRelease(domain.Release{ID: 10, ArtistID: artist.ID, Title: "Midnight EP", CoverURL: "http://cdn/cover.jpg"})
	mem.SeedRelease(domain.Release{ID: 11, ArtistID: rival.ID, Title: "Other LP"})
	mem.SeedTrack(domain.Track{ID: 100, ReleaseID: 10, Title: "Midnight"})

	svc := NewSupportService(SupportDependencies{
		ThreadRepo:  mem.Threads(),
		MessageRepo: mem.Messages(),
		UserRepo:    mem.Users(),
		ReleaseRepo: mem.Releases(),
		Dispatcher:  events.NewInMemoryDispatcher(),
	})
	return svc, mem
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return de.Code
}

func TestEnsureArtistThreadIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.EnsureArtistThread(ctx, artist)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create a thread")
	}
	if first.Status != domain.ThreadStatusNew {
		t.Fatalf("bootstrap thread status = %s, want new", first.Status)
	}
	if first.Subject == "" {
		t.Fatal("bootstrap thread must carry a default subject")
	}

	second, created, err := svc.EnsureArtistThread(ctx, artist)
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if created {
		t.Fatal("second call must not create another thread")
	}
	if second.ID != first.ID {
		t.Fatalf("bootstrap converged on thread %d, want %d", second.ID, first.ID)
	}

	if _, _, err := svc.EnsureArtistThread(ctx, staff); err == nil {
		t.Fatal("staff bootstrap must be rejected")
	}
}

func TestSendMessageRequiresContent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	_, err := svc.SendMessage(ctx, artist, SendMessageInput{ThreadID: thread.ID, Body: "   "})
	if code := domainCode(t, err); code != "VALIDATION_FAILED" {
		t.Fatalf("empty message code = %s, want VALIDATION_FAILED", code)
	}

	// A bare attachment or catalog link is enough.
	if _, err := svc.SendMessage(ctx, artist, SendMessageInput{
		ThreadID:      thread.ID,
		AttachmentURL: "http://cdn/demo.wav",
	}); err != nil {
		t.Fatalf("attachment-only message rejected: %v", err)
	}
	releaseID := int64(10)
	if _, err := svc.SendMessage(ctx, artist, SendMessageInput{
		ThreadID:  thread.ID,
		ReleaseID: &releaseID,
	}); err != nil {
		t.Fatalf("link-only message rejected: %v", err)
	}
}

func TestSendMessageInfersType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	cases := []struct {
		url  string
		want domain.MessageType
	}{
		{"", domain.MessageTypeText},
		{"http://cdn/cover.PNG", domain.MessageTypeImage},
		{"http://cdn/master.wav", domain.MessageTypeFile},
	}
	for _, tc := range cases {
		msg, err := svc.SendMessage(ctx, artist, SendMessageInput{
			ThreadID:      thread.ID,
			Body:          "check this",
			AttachmentURL: tc.url,
		})
		if err != nil {
			t.Fatalf("send (%q): %v", tc.url, err)
		}
		if msg.Type != tc.want {
			t.Fatalf("type for %q = %s, want %s", tc.url, msg.Type, tc.want)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	if _, err := svc.UpdateStatus(ctx, artist, thread.ID, domain.ThreadStatusResolved); err == nil {
		t.Fatal("artist must not change status")
	}

	updated, err := svc.UpdateStatus(ctx, staff, thread.ID, domain.ThreadStatusInProgress)
	if err != nil {
		t.Fatalf("new -> in_progress: %v", err)
	}
	if updated.Status != domain.ThreadStatusInProgress {
		t.Fatalf("status = %s, want in_progress", updated.Status)
	}

	if _, err := svc.UpdateStatus(ctx, staff, thread.ID, domain.ThreadStatusNew); err == nil {
		t.Fatal("in_progress -> new must be rejected")
	}

	if _, err := svc.UpdateStatus(ctx, staff, thread.ID, domain.ThreadStatusResolved); err != nil {
		t.Fatalf("in_progress -> resolved: %v", err)
	}

	_, err = svc.UpdateStatus(ctx, staff, thread.ID, domain.ThreadStatusInProgress)
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Fatalf("leaving resolved code = %s, want CONFLICT", code)
	}
}

func TestRateThreadOnceAfterResolve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	_, err := svc.RateThread(ctx, artist, thread.ID, 5)
	if code := domainCode(t, err); code != "VALIDATION_FAILED" {
		t.Fatalf("rating before resolve code = %s, want VALIDATION_FAILED", code)
	}

	if _, err := svc.UpdateStatus(ctx, staff, thread.ID, domain.ThreadStatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := svc.RateThread(ctx, artist, thread.ID, 6); err == nil {
		t.Fatal("rating 6 must be rejected")
	}
	if _, err := svc.RateThread(ctx, staff, thread.ID, 5); err == nil {
		t.Fatal("staff must not rate")
	}
	if _, err := svc.RateThread(ctx, rival, thread.ID, 5); err == nil {
		t.Fatal("foreign artist must not rate")
	}

	rated, err := svc.RateThread(ctx, artist, thread.ID, 4)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 4 {
		t.Fatalf("rating = %v, want 4", rated.Rating)
	}

	_, err = svc.RateThread(ctx, artist, thread.ID, 5)
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Fatalf("second rating code = %s, want CONFLICT", code)
	}

	got, err := svc.GetThreadLog(ctx, artist, thread.ID)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if got.Thread.Rating == nil || *got.Thread.Rating != 4 {
		t.Fatalf("stored rating = %v, want the first write to win", got.Thread.Rating)
	}
}

func TestUnreadFlowAcrossRoles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	if _, err := svc.SendMessage(ctx, artist, SendMessageInput{ThreadID: thread.ID, Body: "hello"}); err != nil {
		t.Fatalf("artist send: %v", err)
	}

	staffTotal, err := svc.UnreadTotal(ctx, staff)
	if err != nil {
		t.Fatalf("staff unread: %v", err)
	}
	if staffTotal != 1 {
		t.Fatalf("staff unread = %d, want 1", staffTotal)
	}

	// Staff opening the log marks the artist's message read.
	if _, err := svc.GetThreadLog(ctx, staff, thread.ID); err != nil {
		t.Fatalf("staff log: %v", err)
	}
	staffTotal, _ = svc.UnreadTotal(ctx, staff)
	if staffTotal != 0 {
		t.Fatalf("staff unread after read = %d, want 0", staffTotal)
	}

	if _, err := svc.SendMessage(ctx, staff, SendMessageInput{ThreadID: thread.ID, Body: "on it"}); err != nil {
		t.Fatalf("staff reply: %v", err)
	}
	if _, err := svc.SendMessage(ctx, staff, SendMessageInput{ThreadID: thread.ID, Body: "note", InternalNote: true}); err != nil {
		t.Fatalf("internal note: %v", err)
	}

	artistTotal, err := svc.UnreadTotal(ctx, artist)
	if err != nil {
		t.Fatalf("artist unread: %v", err)
	}
	if artistTotal != 1 {
		t.Fatalf("artist unread = %d, want 1 (internal note excluded)", artistTotal)
	}

	summaries, err := svc.ListThreads(ctx, artist, nil)
	if err != nil {
		t.Fatalf("artist list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].UnreadCount != 1 {
		t.Fatalf("artist summary unread = %+v, want 1", summaries)
	}

	log, err := svc.GetThreadLog(ctx, artist, thread.ID)
	if err != nil {
		t.Fatalf("artist log: %v", err)
	}
	for _, msg := range log.Messages {
		if msg.InternalNote {
			t.Fatal("internal note leaked to artist")
		}
	}
	if total, _ := svc.UnreadTotal(ctx, artist); total != 0 {
		t.Fatalf("artist unread after read = %d, want 0", total)
	}
}

func TestInternalNoteHiddenFromArtistPreview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	if _, err := svc.SendMessage(ctx, artist, SendMessageInput{ThreadID: thread.ID, Body: "question"}); err != nil {
		t.Fatalf("artist send: %v", err)
	}
	if _, err := svc.SendMessage(ctx, staff, SendMessageInput{ThreadID: thread.ID, Body: "for staff eyes", InternalNote: true}); err != nil {
		t.Fatalf("internal note: %v", err)
	}

	own, err := svc.ListThreads(ctx, artist, nil)
	if err != nil {
		t.Fatalf("artist list: %v", err)
	}
	if len(own) != 1 || own[0].LastMessage != "question" {
		t.Fatalf("artist preview = %q, want the last visible message", own[0].LastMessage)
	}

	all, err := svc.ListThreads(ctx, staff, nil)
	if err != nil {
		t.Fatalf("staff list: %v", err)
	}
	if len(all) != 1 || all[0].LastMessage != "for staff eyes" {
		t.Fatalf("staff preview = %q, want the note", all[0].LastMessage)
	}
}

func TestArtistReadLeavesInternalNotesUnread(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	if _, err := svc.SendMessage(ctx, staff, SendMessageInput{ThreadID: thread.ID, Body: "escalate?", InternalNote: true}); err != nil {
		t.Fatalf("internal note: %v", err)
	}

	// The artist opening the log must not consume a note they cannot see.
	if _, err := svc.GetThreadLog(ctx, artist, thread.ID); err != nil {
		t.Fatalf("artist log: %v", err)
	}
	if total, _ := svc.UnreadTotal(ctx, boss); total != 1 {
		t.Fatalf("director unread after artist read = %d, want 1", total)
	}

	// A staff read does consume it.
	if _, err := svc.GetThreadLog(ctx, boss, thread.ID); err != nil {
		t.Fatalf("director log: %v", err)
	}
	if total, _ := svc.UnreadTotal(ctx, boss); total != 0 {
		t.Fatalf("director unread after staff read = %d, want 0", total)
	}
}

func TestInternalNoteStaffOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	_, err := svc.SendMessage(ctx, artist, SendMessageInput{ThreadID: thread.ID, Body: "x", InternalNote: true})
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("artist internal note code = %s, want FORBIDDEN", code)
	}
}

func TestThreadAccessControl(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	_, err := svc.GetThreadLog(ctx, rival, thread.ID)
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("foreign artist access code = %s, want FORBIDDEN", code)
	}

	_, err = svc.GetThreadLog(ctx, artist, 9999)
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("missing thread code = %s, want NOT_FOUND", code)
	}

	if _, err := svc.GetThreadLog(ctx, boss, thread.ID); err != nil {
		t.Fatalf("director access: %v", err)
	}
}

func TestAttachReleaseOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	otherRelease := int64(11)
	_, err := svc.AttachRelease(ctx, staff, AttachReleaseInput{ThreadID: thread.ID, ReleaseID: &otherRelease})
	if code := domainCode(t, err); code != "VALIDATION_FAILED" {
		t.Fatalf("foreign release code = %s, want VALIDATION_FAILED", code)
	}

	trackID := int64(100)
	updated, err := svc.AttachRelease(ctx, staff, AttachReleaseInput{ThreadID: thread.ID, TrackID: &trackID})
	if err != nil {
		t.Fatalf("attach track: %v", err)
	}
	if updated.TrackID == nil || *updated.TrackID != trackID {
		t.Fatalf("thread track pointer = %v, want %d", updated.TrackID, trackID)
	}
	if updated.ReleaseID == nil || *updated.ReleaseID != 10 {
		t.Fatalf("thread release pointer = %v, want 10", updated.ReleaseID)
	}
	if updated.ReleaseTitle != "Midnight EP" {
		t.Fatalf("release title = %q, want denormalized", updated.ReleaseTitle)
	}

	log, err := svc.GetThreadLog(ctx, staff, thread.ID)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	last := log.Messages[len(log.Messages)-1]
	if last.TrackID == nil || *last.TrackID != trackID {
		t.Fatal("attach must append a structured log entry")
	}
}

func TestAssignThread(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	thread, _, _ := svc.EnsureArtistThread(ctx, artist)

	artistID := artist.ID
	if _, err := svc.AssignThread(ctx, staff, thread.ID, &artistID); err == nil {
		t.Fatal("assigning a non-staff user must fail")
	}

	bossID := boss.ID
	assigned, err := svc.AssignThread(ctx, staff, thread.ID, &bossID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssigneeID == nil || *assigned.AssigneeID != bossID {
		t.Fatalf("assignee = %v, want %d", assigned.AssigneeID, bossID)
	}
	if assigned.Status != domain.ThreadStatusInProgress {
		t.Fatalf("assignment must acknowledge a new thread, got %s", assigned.Status)
	}

	if _, err := svc.AssignThread(ctx, artist, thread.ID, &bossID); err == nil {
		t.Fatal("artist must not assign")
	}
}

func TestCreateThreadRoleRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	thread, err := svc.CreateThread(ctx, artist, CreateThreadInput{InitialMessage: "need help"})
	if err != nil {
		t.Fatalf("artist create: %v", err)
	}
	if thread.Subject == "" || thread.Priority != domain.ThreadPriorityNormal {
		t.Fatalf("defaults not applied: %+v", thread)
	}

	if _, err := svc.CreateThread(ctx, artist, CreateThreadInput{ArtistID: rival.ID}); err == nil {
		t.Fatal("artist must not open threads for others")
	}

	staffMade, err := svc.CreateThread(ctx, staff, CreateThreadInput{ArtistID: artist.ID, Subject: "payout question", Priority: domain.ThreadPriorityUrgent})
	if err != nil {
		t.Fatalf("staff create: %v", err)
	}
	if staffMade.ArtistID != artist.ID || staffMade.Priority != domain.ThreadPriorityUrgent {
		t.Fatalf("staff-created thread wrong: %+v", staffMade)
	}

	if _, err := svc.CreateThread(ctx, staff, CreateThreadInput{}); err == nil {
		t.Fatal("staff create without artist_id must fail")
	}
	if _, err := svc.CreateThread(ctx, staff, CreateThreadInput{ArtistID: boss.ID}); err == nil {
		t.Fatal("staff cannot open a thread for a non-artist")
	}
}

func TestListThreadsVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mine, _, _ := svc.EnsureArtistThread(ctx, artist)
	if _, _, err := svc.EnsureArtistThread(ctx, rival); err != nil {
		t.Fatalf("rival bootstrap: %v", err)
	}

	all, err := svc.ListThreads(ctx, staff, nil)
	if err != nil {
		t.Fatalf("staff list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff sees %d threads, want 2", len(all))
	}

	own, err := svc.ListThreads(ctx, artist, nil)
	if err != nil {
		t.Fatalf("artist list: %v", err)
	}
	if len(own) != 1 || own[0].ID != mine.ID {
		t.Fatalf("artist list = %+v, want only own thread", own)
	}

	statusNew := domain.ThreadStatusNew
	if _, err := svc.ListThreads(ctx, artist, &statusNew); err == nil {
		t.Fatal("status filter must be staff-only")
	}
	filtered, err := svc.ListThreads(ctx, staff, &statusNew)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("filtered = %d, want 2", len(filtered))
	}
}

func TestListArtistsAndCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ListArtists(ctx, artist); err == nil {
		t.Fatal("artist directory must be staff-only")
	}
	artists, err := svc.ListArtists(ctx, staff)
	if err != nil {
		t.Fatalf("list artists: %v", err)
	}
	if len(artists) != 2 {
		t.Fatalf("artists = %d, want 2", len(artists))
	}

	releases, tracks, err := svc.ListOwnReleases(ctx, artist)
	if err != nil {
		t.Fatalf("own releases: %v", err)
	}
	if len(releases) != 1 || releases[0].ID != 10 {
		t.Fatalf("releases = %+v, want release 10", releases)
	}
	if len(tracks) != 1 || tracks[0].ID != 100 {
		t.Fatalf("tracks = %+v, want track 100", tracks)
	}
}
