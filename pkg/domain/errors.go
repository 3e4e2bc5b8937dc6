package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoConditions is returned when an experimentalist proposes an empty set.
var ErrNoConditions = errors.New("no conditions proposed")

// ErrNoObservations is returned when a runner finishes without a single trial.
var ErrNoObservations = errors.New("no observations collected")

// ErrTooFewTrials is returned when a theorist has fewer trials than model parameters.
var ErrTooFewTrials = errors.New("too few trials to fit model")

// ErrStudyNotFound is returned when a recruitment study ID is unknown to the platform.
var ErrStudyNotFound = errors.New("study not found")
