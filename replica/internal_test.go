package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/config"
	"github.com/minutemodem/eparl/kvcmd"
	"github.com/minutemodem/eparl/membership"
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/transport"
	"github.com/minutemodem/eparl/types"
)

// recordingTransport captures every Send/Broadcast without delivering
// anything, so handler logic can be exercised deterministically without a
// live dispatcher loop racing the assertions.
type recordingTransport struct {
	self types.ReplicaID
	sent []sentMessage
}

type sentMessage struct {
	to  types.ReplicaID
	all bool
	msg message.Message
}

func (t *recordingTransport) Self() types.ReplicaID { return t.self }
func (t *recordingTransport) Send(to types.ReplicaID, msg message.Message) {
	t.sent = append(t.sent, sentMessage{to: to, msg: msg})
}
func (t *recordingTransport) Broadcast(msg message.Message) {
	t.sent = append(t.sent, sentMessage{all: true, msg: msg})
}
func (t *recordingTransport) RegisterHandler(transport.Handler) {}
func (t *recordingTransport) Close() error                      { return nil }

func newTestCoordinator(t *testing.T, n int) (*Coordinator, *recordingTransport) {
	t.Helper()
	m, err := membership.NewStatic(n, 0)
	require.NoError(t, err)

	trans := &recordingTransport{self: 0}
	params := config.DefaultParameters(n, 0)
	params.PreAcceptTimeout = time.Hour
	params.AcceptTimeout = time.Hour
	params.RecoveryTimeout = time.Hour

	c := New(kvcmd.Module{}, kvcmd.InitialState(), m, trans, params, nil, nil)
	return c, trans
}

func TestOnPreAcceptOKFastCommitsWhenAllResponsesAgree(t *testing.T) {
	require := require.New(t)

	c, trans := newTestCoordinator(t, 3)
	id := types.InstanceID{Replica: 0, Num: 1}
	cmd := kvcmd.Put("x", 1)

	c.startPreAccept(id, cmd, ballot.Initial(0))
	trans.sent = nil

	deps := set.New[types.InstanceID](0)
	c.onPreAcceptOK(0, message.PreAcceptOK{InstanceID: id, Seq: 1, Deps: deps.List(), From: 0})
	c.onPreAcceptOK(1, message.PreAcceptOK{InstanceID: id, Seq: 1, Deps: deps.List(), From: 1})
	c.onPreAcceptOK(2, message.PreAcceptOK{InstanceID: id, Seq: 1, Deps: deps.List(), From: 2})

	foundCommit := false
	for _, s := range trans.sent {
		if s.msg.Kind() == message.KindCommit {
			foundCommit = true
		}
	}
	require.True(foundCommit, "expected a Commit broadcast once all PreAcceptOK responses agree")
}

func TestOnPreAcceptOKGoesSlowWhenResponsesDisagree(t *testing.T) {
	require := require.New(t)

	c, trans := newTestCoordinator(t, 3)
	id := types.InstanceID{Replica: 0, Num: 1}
	cmd := kvcmd.Put("x", 1)

	c.startPreAccept(id, cmd, ballot.Initial(0))
	trans.sent = nil

	other := types.InstanceID{Replica: 1, Num: 5}
	c.onPreAcceptOK(0, message.PreAcceptOK{InstanceID: id, Seq: 1, Deps: nil, From: 0})
	c.onPreAcceptOK(1, message.PreAcceptOK{InstanceID: id, Seq: 1, Deps: nil, From: 1})
	c.onPreAcceptOK(2, message.PreAcceptOK{InstanceID: id, Seq: 2, Deps: []types.InstanceID{other}, From: 2})

	foundAccept, foundCommit := false, false
	for _, s := range trans.sent {
		switch s.msg.Kind() {
		case message.KindAccept:
			foundAccept = true
		case message.KindCommit:
			foundCommit = true
		}
	}
	require.True(foundAccept, "expected Accept broadcast when responses disagree")
	require.False(foundCommit, "must not fast-commit on disagreement")
}

func TestOnAcceptOKCommitsOnceSlowQuorumReached(t *testing.T) {
	require := require.New(t)

	c, trans := newTestCoordinator(t, 3)
	id := types.InstanceID{Replica: 0, Num: 1}
	d := &drive{id: id, cmd: kvcmd.Put("x", 1), ballot: ballot.Initial(0), phase: phaseAccept, deps: set.New[types.InstanceID](0)}
	c.drives[id] = d
	trans.sent = nil

	c.onAcceptOK(1, message.AcceptOK{InstanceID: id, From: 1})
	c.onAcceptOK(2, message.AcceptOK{InstanceID: id, From: 2})

	foundCommit := false
	for _, s := range trans.sent {
		if s.msg.Kind() == message.KindCommit {
			foundCommit = true
		}
	}
	require.True(foundCommit, "slow quorum of AcceptOK must commit (n=3 needs 2 acks)")
	require.NotContains(c.drives, id, "commitInstance retires the drive once it broadcasts Commit")
}

func TestAcceptBallotRejectsLowerBallot(t *testing.T) {
	require := require.New(t)

	c, _ := newTestCoordinator(t, 3)
	id := types.InstanceID{Replica: 0, Num: 1}
	c.startPreAccept(id, kvcmd.Put("x", 1), ballot.HigherThan(ballot.Initial(0), 0))

	require.False(c.acceptBallot(id, ballot.Initial(0)))
	require.True(c.acceptBallot(id, ballot.HigherThan(ballot.Ballot{Epoch: 1}, 0)))
}

func TestDecideRecoveryRule1AdoptsCommitted(t *testing.T) {
	require := require.New(t)

	c, trans := newTestCoordinator(t, 3)
	id := types.InstanceID{Replica: 1, Num: 7}
	d := &drive{id: id, phase: phaseRecover, deps: set.New[types.InstanceID](0)}
	d.rec = &recoveryState{prepareResponses: map[types.ReplicaID]*message.PrepareOK{}}
	c.drives[id] = d

	cmd := kvcmd.Put("x", 9)
	d.rec.prepareResponses[2] = &message.PrepareOK{InstanceID: id, Instance: &message.RecoveredInstance{
		Command: cmd, Seq: 3, Status: types.StatusCommitted,
	}}
	trans.sent = nil

	c.decideRecovery(d)

	require.True(d.rec.decided)
	found := false
	for _, s := range trans.sent {
		if s.msg.Kind() == message.KindCommit {
			found = true
		}
	}
	require.True(found)
}

func TestDecideRecoveryRule7SealsNeverExistedAsNoOp(t *testing.T) {
	require := require.New(t)

	c, trans := newTestCoordinator(t, 3)
	id := types.InstanceID{Replica: 1, Num: 9}
	d := &drive{id: id, phase: phaseRecover, deps: set.New[types.InstanceID](0)}
	d.rec = &recoveryState{prepareResponses: map[types.ReplicaID]*message.PrepareOK{
		0: {InstanceID: id, Instance: nil},
		2: {InstanceID: id, Instance: nil},
	}}
	c.drives[id] = d
	trans.sent = nil

	c.decideRecovery(d)

	require.True(d.noOp)
	require.Equal(types.SeqNum(1), d.seq)
	foundAccept := false
	for _, s := range trans.sent {
		if s.msg.Kind() == message.KindAccept {
			foundAccept = true
		}
	}
	require.True(foundAccept, "a sealed no-op still drives the Accept round so it commits")
}

func TestPreAcceptedAgreeRequiresSameSeqAndDeps(t *testing.T) {
	require := require.New(t)

	same := set.Of(types.InstanceID{Replica: 0, Num: 1}).List()
	a := preAccEntry{replica: 0, inst: &message.RecoveredInstance{Seq: 2, Deps: same}}
	b := preAccEntry{replica: 1, inst: &message.RecoveredInstance{Seq: 2, Deps: same}}
	require.True(preAcceptedAgree([]preAccEntry{a, b}))

	c := preAccEntry{replica: 2, inst: &message.RecoveredInstance{Seq: 3, Deps: same}}
	require.False(preAcceptedAgree([]preAccEntry{a, c}))
}
