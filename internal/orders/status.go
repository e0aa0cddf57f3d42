package orders

type Status string

const (
	StatusDraft             Status = "draft"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusFullyRefunded     Status = "fully_refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusDraft:             {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:         {StatusPartiallyRefunded: true, StatusFullyRefunded: true},
	StatusPartiallyRefunded: {StatusPartiallyRefunded: true, StatusFullyRefunded: true},
	StatusCancelled:         {},
	StatusFullyRefunded:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}
