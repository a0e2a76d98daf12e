package graphql

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNoCredential = errors.New("refresh response carried no credential")

// refresh performs the refresh exchange with the expiring credential, then
// drains the queue. The queue is captured and the state returned to Running
// in one critical section, so requests arriving during replay are dispatched
// normally and a rejection among them may start the next refresh.
func (t *Transport) refresh(expiring string) {
	defer t.inflight.Done()

	started := time.Now()
	t.metrics.RefreshStarted()
	t.logger.Info("graphql credential refresh started", "operation", t.refreshOp.label())

	out := t.exchange(t.baseCtx, t.refreshOp, expiring)
	credential, refreshErr := t.credentialFrom(out)

	t.mu.Lock()
	if t.state != StateWaitingForAuth {
		t.mu.Unlock()
		panic(fmt.Sprintf("graphql: transport state broken: refresh completed in state %s", t.state))
	}
	pending := t.queue
	t.queue = nil
	reason := ReasonRefreshed
	if refreshErr != nil {
		reason = ReasonRefreshFailed
		t.refreshFailures++
	} else {
		t.credential = credential
	}
	t.transitionLocked(StateRunning, reason, nil, len(pending))
	t.mu.Unlock()

	t.metrics.RefreshFinished(refreshErr == nil, time.Since(started))

	if refreshErr != nil {
		t.logger.Error("graphql credential refresh failed", "err", refreshErr, "queued", len(pending))
		for _, req := range pending {
			req.finish(nil, refreshErr)
		}
		return
	}

	t.logger.Info("graphql credential refreshed", "replaying", len(pending))
	if t.saver != nil {
		if err := t.saver.Save(t.baseCtx, credential); err != nil {
			t.logger.Warn("graphql credential not persisted", "err", err)
		}
	}
	for _, req := range pending {
		t.replay(req)
	}
}

// replay re-sends a request with the credential current at the moment it
// goes out, so a refresh completing mid-drain is honoured by the rest of the
// queue. If a newer refresh is in flight the request joins its queue instead.
// A rejection of the replay itself is handed to the caller as an error; it
// never starts a refresh.
func (t *Transport) replay(req *pendingRequest) {
	t.mu.Lock()
	if req.isDone() {
		t.mu.Unlock()
		return
	}
	if t.state == StateWaitingForAuth {
		t.queue = append(t.queue, req)
		t.transitionLocked(StateWaitingForAuth, ReasonRequeued, req, 0)
		t.mu.Unlock()
		return
	}
	credential := t.credential
	t.mu.Unlock()

	t.deliver(req, t.exchange(req.ctx, req.op, credential))
}

// credentialFrom extracts the new credential from a refresh outcome: the
// response header first, then the configured data field.
func (t *Transport) credentialFrom(out Outcome) (string, error) {
	if out.Kind != OutcomeSuccess {
		return "", &RefreshFailedError{Status: out.Status, Cause: out.Error()}
	}
	if out.Credential != "" {
		return out.Credential, nil
	}
	if t.tokenField != "" {
		if value := tokenFromData(out.Response().Data(), t.tokenField); value != "" {
			return value, nil
		}
	}
	return "", &RefreshFailedError{Status: out.Status, Cause: errNoCredential}
}

// tokenFromData reads a dotted path such as "refreshToken.token" from data.
func tokenFromData(data map[string]any, path string) string {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[key]
	}
	s, _ := current.(string)
	return strings.TrimSpace(s)
}
