package domain

import (
	"fmt"
	"time"
)

// SequencerRequest

type SequencerRequest interface {
	ActorRequest
	SequencerCommand() string
}

type SequencerRequestMixIn struct {
	ActorRequestMixIn
}

func (r SequencerRequestMixIn) SequencerCommand() string {
	return fmt.Sprintf("%T", r)
}

// Sequencer commands

type SetStartStopTargetRequest struct {
	SequencerRequestMixIn
	Target StartStop
}

type SetStartStopTargetResponse struct {
	ActorResponseMixIn
	Target  StartStop
	Changed bool
}

type GetSequencerStatusRequest struct {
	SequencerRequestMixIn
}

type GetSequencerStatusResponse struct {
	ActorResponseMixIn
	Status SequencerStatus
}

type SequencerFlags struct {
	MaxStartAttempts       bool `json:"max_start_attempts"`
	MaxStopAttempts        bool `json:"max_stop_attempts"`
	UnexpectedStoppedState bool `json:"unexpected_stopped_state"`
	TimeoutStart           bool `json:"timeout_start"`
	TimeoutStop            bool `json:"timeout_stop"`
	RunFailed              bool `json:"run_failed"`
}

type SequencerStatus struct {
	State          string         `json:"state"`
	StateCode      int            `json:"state_code"`
	SubState       string         `json:"sub_state,omitempty"`
	Target         string         `json:"target"`
	StartStop      string         `json:"start_stop"`
	Flags          SequencerFlags `json:"flags"`
	LastTransition time.Time      `json:"last_transition"`
	Version        string         `json:"version"`
}

// ensure interface compliance
var _ SequencerRequest = (*SetStartStopTargetRequest)(nil)
var _ SequencerRequest = (*GetSequencerStatusRequest)(nil)
