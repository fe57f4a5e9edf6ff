package attendance

// Outcome is the final result of a redemption attempt. Each value is a stable
// message key; the transport layer maps them to responses without inventing
// its own strings.
type Outcome string

const (
	// OutcomeSuccess means a new attendance record was written.
	OutcomeSuccess Outcome = "success"
	// OutcomeDuplicate means the attendee already redeemed this occurrence.
	// Not a failure in the security sense: the ledger is unchanged.
	OutcomeDuplicate Outcome = "duplicate_submission"
	// OutcomeBadSignature means the token was tampered with or signed with a
	// foreign secret.
	OutcomeBadSignature Outcome = "bad_signature"
	// OutcomeExpired means a legitimate token aged past its validity window.
	OutcomeExpired Outcome = "expired"
	// OutcomeMismatch means the token was issued for a different occurrence
	// than the one claimed.
	OutcomeMismatch Outcome = "mismatch"
	// OutcomeWrongGroup means the occurrence belongs to another group.
	OutcomeWrongGroup Outcome = "wrong_group"
	// OutcomeNotFound means the claimed occurrence references no known
	// template entry.
	OutcomeNotFound Outcome = "occurrence_not_found"
)

// Recorded reports whether the outcome left a new row in the ledger.
func (o Outcome) Recorded() bool { return o == OutcomeSuccess }
