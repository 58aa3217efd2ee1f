package config

import "time"

// Energy variants for the energy-aware parent election described in §4.B.
type EnergyVariant int

const (
	// VariantBase runs the base election: single distance, no energy bias.
	VariantBase EnergyVariant = iota
	// VariantEA1 prefers lower energy_state among equal-distance candidates.
	VariantEA1
	// VariantEA2 tracks three class-scoped distances (high/mid/low).
	VariantEA2
	// VariantEA3 folds the parent's energy class into the edge weight of a
	// single weighted distance.
	VariantEA3
)

// Tunables collects every configuration constant named in §6, with the
// defaults from that table.
type Tunables struct {
	// RUP
	MaxHistorySize int           // MAX_HISTORY_SIZE
	MessagingPort  uint16        // MESSAGING_PORT
	AckPort        uint16        // ACKNOWLEDGEMENT_PORT
	AckTimeout     time.Duration // TIMEOUT_IN_SEC
	MaxTries       int           // MAX_TRIES
	NextMsgDelay   time.Duration // NEXT_MSG_DELAY base, jittered uniform[0.5,1.0]
	DelayOnFail    time.Duration // DELAY_ON_FAIL_IN_SEC base, scaled by tries^2 * uniform(0,1)

	// NG / STC
	GossipPort        uint16        // MLST_PVN_PORT
	MaxNeighborAge    time.Duration // MAX_AGE_OF_MLST_NBR_IN_SECONDS
	PeriodLength      time.Duration // MLST_PERIOD_LENGTH_IN_SECONDS base, jittered uniform[0.8,1.0]
	StayActivePeriods int           // IF_CHANGE_STAY_ACTIVE_FOR_N_PERIODS
	MaxAgeOfParent    time.Duration // MAX_AGE_OF_PARENT

	// Variant selection (not in the original source, but every node in a
	// deployment must agree on which public-record shape it publishes).
	Variant EnergyVariant
}

// Default returns the §6 defaults.
func Default() Tunables {
	return Tunables{
		MaxHistorySize:    30,
		MessagingPort:     181,
		AckPort:           182,
		AckTimeout:        200 * time.Millisecond,
		MaxTries:          5,
		NextMsgDelay:      10 * time.Millisecond,
		DelayOnFail:       100 * time.Millisecond,
		GossipPort:        154,
		MaxNeighborAge:    15 * time.Second,
		PeriodLength:      time.Second,
		StayActivePeriods: 3,
		MaxAgeOfParent:    5 * time.Second,
		Variant:           VariantBase,
	}
}

// Validate rejects configurations that would leave the protocol unable to
// make progress (e.g. zero retries, overlapping ports).
func (t Tunables) Validate() error {
	var errs ValidationErrors

	if t.MaxHistorySize <= 0 {
		errs = append(errs, ValidationError{"MaxHistorySize", t.MaxHistorySize, "must be positive"})
	}
	if t.MessagingPort == t.AckPort {
		errs = append(errs, ValidationError{"AckPort", t.AckPort, "must differ from MessagingPort"})
	}
	if t.MessagingPort == t.GossipPort || t.AckPort == t.GossipPort {
		errs = append(errs, ValidationError{"GossipPort", t.GossipPort, "must not collide with the unicast ports"})
	}
	if t.AckTimeout <= 0 {
		errs = append(errs, ValidationError{"AckTimeout", t.AckTimeout, "must be positive"})
	}
	if t.MaxTries <= 0 {
		errs = append(errs, ValidationError{"MaxTries", t.MaxTries, "must be positive"})
	}
	if t.PeriodLength <= 0 {
		errs = append(errs, ValidationError{"PeriodLength", t.PeriodLength, "must be positive"})
	}
	if t.StayActivePeriods < 0 {
		errs = append(errs, ValidationError{"StayActivePeriods", t.StayActivePeriods, "must not be negative"})
	}
	if t.MaxAgeOfParent <= 0 {
		errs = append(errs, ValidationError{"MaxAgeOfParent", t.MaxAgeOfParent, "must be positive"})
	}
	if t.Variant < VariantBase || t.Variant > VariantEA3 {
		errs = append(errs, ValidationError{"Variant", t.Variant, "unknown energy variant"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
