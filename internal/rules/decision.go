package rules

// Decision codes form a closed vocabulary. Every non-no-op outcome carries
// exactly one of these along with the numeric inputs that triggered it.
const (
	CodeRunoutCritical            = "RUNOUT_CRITICAL"
	CodeRunoutHigh                = "RUNOUT_HIGH"
	CodeStaleInventoryAmbiguous   = "STALE_INVENTORY_AMBIGUOUS"
	CodeStaleETARequest           = "STALE_ETA_REQUEST"
	CodeUnreliableCarrierEscalate = "UNRELIABLE_CARRIER_ESCALATE"
	CodeDelayedLoadAtRisk         = "DELAYED_LOAD_AT_RISK"
	CodeDelayedLoadSiteOK         = "DELAYED_LOAD_SITE_OK"
	CodeMultiSiteCarrierRisk      = "MULTI_SITE_CARRIER_RISK"
	CodeThrottled                 = "THROTTLED"
	CodeTier2Fallback             = "TIER2_FALLBACK"
)

// ActionKind is what the executor should do with a decision.
type ActionKind string

const (
	ActionSendEmail        ActionKind = "send_email"
	ActionCreateEscalation ActionKind = "create_escalation"
	ActionFlagAmbiguous    ActionKind = "flag_ambiguous"

	// ActionLogNote is audit-only: the disambiguation agent concluded no
	// external action is warranted, and the observation is recorded.
	ActionLogNote ActionKind = "log_note"
)

// Decision is one classified outcome for a (site, load) subject.
type Decision struct {
	Kind     ActionKind
	Code     string
	Priority string // escalation priority, empty for emails
	Issue    string // escalation issue type, empty for emails

	SiteID    uint
	LoadID    *uint
	CarrierID *uint

	// TemplateClass selects the email template and keys the throttle
	// guard's cooldown. CooldownHours overrides the SLA-derived cooldown
	// when positive.
	TemplateClass string
	CooldownHours float64

	Description string
	Metrics     map[string]float64
}
