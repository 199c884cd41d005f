package driven

import "github.com/ericfisherdev/quotapool/internal/domain/model"

// ErrorClassifier defines the driven port that maps transport-level errors
// into the pool's error taxonomy. This is the single place where knowledge
// of a specific API's error shapes lives; the application core only ever
// sees model.ErrorKind values.
type ErrorClassifier interface {
	Classify(err error) model.ErrorKind
}
