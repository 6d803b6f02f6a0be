package models

// Reservation statuses. Booked slots mirror the status of their reservation.
const (
	StatusHeld      = "held"
	StatusPending   = "pending"
	StatusBooked    = "booked"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// Slot statuses produced by the time grid.
const (
	SlotAvailable = "available"
	SlotBooked    = "booked"
	SlotPending   = "pending"
	SlotPast      = "past"
)

// Voucher statuses.
const (
	VoucherDraft     = "draft"
	VoucherLocked    = "locked"
	VoucherPaid      = "paid"
	VoucherCancelled = "cancelled"
)

const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
)

const (
	ChannelOnline = "online"
	ChannelDirect = "direct"
)

const (
	PaymentCash     = "cash"
	PaymentTransfer = "transfer"
	PaymentCard     = "card"
)

// Billing units of a service.
const (
	UnitHour  = "hour"
	UnitFixed = "fixed"
)

const (
	CategoryPersonnel = "personnel"
	CategoryEquipment = "equipment"
	CategoryAmenity   = "amenity"
)

// Cancellation reasons recorded on a reservation.
const (
	ReasonCustomer    = "customer"
	ReasonStaff       = "staff"
	ReasonNoShow      = "no_show"
	ReasonHoldExpired = "hold_expired"
)

const (
	// DefaultSlotMinutes длительность слота, если тип корта не найден
	DefaultSlotMinutes = 60

	// DefaultNightStart начало ночного тарифа
	DefaultNightStart = "18:00"

	// DefaultMaxHoldMinutes время удержания брони без оплаты
	DefaultMaxHoldMinutes = 15

	// DefaultDraftTTL время жизни черновика ваучера в секундах
	DefaultDraftTTL = 2 * 60 * 60

	// DateLayout формат даты в API и конфигурации
	DateLayout = "2006-01-02"

	// ClockLayout формат времени работы площадки
	ClockLayout = "15:04"
)
