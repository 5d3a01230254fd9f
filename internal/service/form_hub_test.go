package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sciencefair-api/internal/repository"
)

func receiveSnapshot(t *testing.T, ch <-chan FormSnapshot) FormSnapshot {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return FormSnapshot{}
	}
}

func requireNoSnapshot(t *testing.T, ch <-chan FormSnapshot) {
	t.Helper()
	select {
	case snapshot := <-ch:
		t.Fatalf("unexpected snapshot with %d forms", len(snapshot.Forms))
	case <-time.After(50 * time.Millisecond):
	}
}

func snapshotStatuses(snapshot FormSnapshot) map[string]string {
	statuses := make(map[string]string, len(snapshot.Forms))
	for _, form := range snapshot.Forms {
		statuses[form.ID] = form.Status
	}
	return statuses
}

func newHubWorkflow(t *testing.T) (*workflow, FormHub) {
	t.Helper()
	w := newWorkflow(t, workflowOptions{})
	hub := NewFormHub(w.forms, nil, "", nil, testLogger())
	w.listen(hub)
	return w, hub
}

// listen adds a listener to every mutation service.
func (w *workflow) listen(listener FormChangeListener) {
	w.versions.(*formVersionService).writer.listeners = append(w.versions.(*formVersionService).writer.listeners, listener)
	w.reviewers.(*reviewerService).writer.listeners = append(w.reviewers.(*reviewerService).writer.listeners, listener)
	w.reviews.(*reviewService).writer.listeners = append(w.reviews.(*reviewService).writer.listeners, listener)
}

func TestFormHubDeliversInitialSnapshotAndUpdates(t *testing.T) {
	w, hub := newHubWorkflow(t)
	ctx := context.Background()

	existing := w.submitForm(t, "P1", "S1", "1", true)
	w.submitForm(t, "P2", "S2", "1", true)

	snapshots, cancel, err := hub.Subscribe(ctx, FormSubscriptionFilter{ProjectID: "P1"})
	require.NoError(t, err)
	defer cancel()

	initial := receiveSnapshot(t, snapshots)
	require.Equal(t, "P1", initial.Filter.ProjectID)
	require.Equal(t, map[string]string{existing.ID: "pending"}, snapshotStatuses(initial))

	w.assign(t, existing.ID, "R1", "primary")
	updated := receiveSnapshot(t, snapshots)
	require.Equal(t, map[string]string{existing.ID: "in_review"}, snapshotStatuses(updated))

	added := w.submitForm(t, "P1", "S3", "2", false)
	updated = receiveSnapshot(t, snapshots)
	require.Len(t, updated.Forms, 2)
	require.Equal(t, "pending", snapshotStatuses(updated)[added.ID])

	// Other projects do not wake this subscription.
	w.assign(t, w.submitForm(t, "P2", "S4", "3", true).ID, "R1", "primary")
	requireNoSnapshot(t, snapshots)
}

func TestFormHubFiltersByStudentAndForm(t *testing.T) {
	w, hub := newHubWorkflow(t)
	ctx := context.Background()

	mine := w.submitForm(t, "P1", "S1", "1", true)
	other := w.submitForm(t, "P1", "S2", "1", true)

	byStudent, cancelStudent, err := hub.Subscribe(ctx, FormSubscriptionFilter{StudentID: "S1"})
	require.NoError(t, err)
	defer cancelStudent()
	byForm, cancelForm, err := hub.Subscribe(ctx, FormSubscriptionFilter{FormID: other.ID})
	require.NoError(t, err)
	defer cancelForm()

	require.Equal(t, []string{mine.ID}, responseIDs(receiveSnapshot(t, byStudent).Forms))
	require.Equal(t, []string{other.ID}, responseIDs(receiveSnapshot(t, byForm).Forms))

	w.review(t, other.ID, "R1", "approved")
	require.Equal(t, map[string]string{other.ID: "approved"}, snapshotStatuses(receiveSnapshot(t, byForm)))
	requireNoSnapshot(t, byStudent)
}

func TestFormHubKeepsOnlyLatestSnapshotForSlowReaders(t *testing.T) {
	w, hub := newHubWorkflow(t)
	form := w.submitForm(t, "P1", "S1", "1", true)

	snapshots, cancel, err := hub.Subscribe(context.Background(), FormSubscriptionFilter{FormID: form.ID})
	require.NoError(t, err)
	defer cancel()

	w.assign(t, form.ID, "R1", "primary")
	w.review(t, form.ID, "R1", "needs_revision")
	w.review(t, form.ID, "R1", "rejected")

	latest := receiveSnapshot(t, snapshots)
	require.Equal(t, map[string]string{form.ID: "rejected"}, snapshotStatuses(latest))
	requireNoSnapshot(t, snapshots)
}

func TestFormHubRejectsAmbiguousFilters(t *testing.T) {
	hub := NewFormHub(repository.NewFormRepository(setupServiceDB(t)), nil, "", nil, testLogger())

	for _, filter := range []FormSubscriptionFilter{
		{},
		{ProjectID: "  "},
		{ProjectID: "P1", StudentID: "S1"},
		{ProjectID: "P1", FormID: "F1"},
	} {
		_, _, err := hub.Subscribe(context.Background(), filter)
		require.ErrorIs(t, err, ErrInvalidSubscription)
	}
}

func TestFormHubCancelClosesChannel(t *testing.T) {
	w, hub := newHubWorkflow(t)
	form := w.submitForm(t, "P1", "S1", "1", true)

	snapshots, cancel, err := hub.Subscribe(context.Background(), FormSubscriptionFilter{ProjectID: "P1"})
	require.NoError(t, err)
	receiveSnapshot(t, snapshots)

	cancel()
	cancel()

	_, ok := <-snapshots
	require.False(t, ok)

	// Mutations after cancel must not panic on the closed channel.
	w.assign(t, form.ID, "R1", "primary")
}

func TestFormHubRefreshesFromOtherNodes(t *testing.T) {
	_, client := newMiniredisClient(t)
	w := newWorkflow(t, workflowOptions{})

	nodeA := NewFormHub(w.forms, client, "fair:test", nil, testLogger())
	nodeB := NewFormHub(w.forms, client, "fair:test", nil, testLogger())
	w.listen(nodeA)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	nodeB.Start(ctx)

	form := w.submitForm(t, "P1", "S1", "1", true)
	snapshots, cancel, err := nodeB.Subscribe(ctx, FormSubscriptionFilter{ProjectID: "P1"})
	require.NoError(t, err)
	defer cancel()
	receiveSnapshot(t, snapshots)

	w.assign(t, form.ID, "R1", "primary")

	// Node B may not have finished subscribing to the channel yet; republish until it has.
	stored, err := w.forms.GetByID(ctx, form.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		nodeA.FormChanged(ctx, stored)
		select {
		case snapshot := <-snapshots:
			return snapshotStatuses(snapshot)[form.ID] == "in_review"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFormHubIgnoresItsOwnEvents(t *testing.T) {
	w, hub := newHubWorkflow(t)
	form := w.submitForm(t, "P1", "S1", "1", true)

	snapshots, cancel, err := hub.Subscribe(context.Background(), FormSubscriptionFilter{FormID: form.ID})
	require.NoError(t, err)
	defer cancel()
	receiveSnapshot(t, snapshots)

	internal := hub.(*formHub)
	internal.handleEvent(context.Background(), []byte(`{"source":"`+internal.nodeID+`","change":{"form_id":"`+form.ID+`"}}`))
	requireNoSnapshot(t, snapshots)

	internal.handleEvent(context.Background(), []byte(`not json`))
	requireNoSnapshot(t, snapshots)

	internal.handleEvent(context.Background(), []byte(`{"source":"other-node","change":{"form_id":"`+form.ID+`"}}`))
	require.Equal(t, []string{form.ID}, responseIDs(receiveSnapshot(t, snapshots).Forms))
}
