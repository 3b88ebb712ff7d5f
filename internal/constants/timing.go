package constants

// MinimumGracePeriodSeconds is the baseline pod termination grace period.
// A configured pre-stop delay extends the grace period beyond this value.
const MinimumGracePeriodSeconds int64 = 30
