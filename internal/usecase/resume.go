package usecase

// ResumeState is the per-attachment resume state.
type ResumeState int

const (
	ResumeIdle      ResumeState = iota // nothing to resume
	ResumePending                      // session was processing at load
	ResumeRequested                    // resume frame sent
	ResumeResolved                     // server answered
)

func (s ResumeState) String() string {
	switch s {
	case ResumePending:
		return "pending"
	case ResumeRequested:
		return "requested"
	case ResumeResolved:
		return "resolved"
	default:
		return "idle"
	}
}

// ResumeCoordinator decides when to ask the server to continue a turn that
// was in flight when the client attached. A resume is requested at most
// once per attachment. It is not safe for concurrent use.
type ResumeCoordinator struct {
	sessionID string
	state     ResumeState
}

// NewResumeCoordinator creates an idle coordinator.
func NewResumeCoordinator() *ResumeCoordinator {
	return &ResumeCoordinator{}
}

// Attach starts a new attachment to sessionID.
func (r *ResumeCoordinator) Attach(sessionID string) {
	r.sessionID = sessionID
	r.state = ResumeIdle
}

// Arm records the session's processing flag from the metadata lookup.
func (r *ResumeCoordinator) Arm(sessionID string, isProcessing bool) {
	if sessionID != r.sessionID || r.state != ResumeIdle || !isProcessing {
		return
	}
	r.state = ResumePending
}

// OnConnected reports whether a resume frame should be sent now, and if so
// moves to ResumeRequested.
func (r *ResumeCoordinator) OnConnected(sessionID string) bool {
	if sessionID != r.sessionID || r.state != ResumePending {
		return false
	}
	r.state = ResumeRequested
	return true
}

// SendFailed returns a requested resume to pending so the next connected
// transition retries it.
func (r *ResumeCoordinator) SendFailed() {
	if r.state == ResumeRequested {
		r.state = ResumePending
	}
}

// Resolve records a resume_* answer from the server.
func (r *ResumeCoordinator) Resolve() {
	r.state = ResumeResolved
}

func (r *ResumeCoordinator) State() ResumeState { return r.state }
