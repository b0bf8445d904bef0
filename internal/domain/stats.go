package domain

// DashboardOverview summarises catalog, booking and revenue totals.
type DashboardOverview struct {
	TotalVehicles     int64
	AvailableVehicles int64
	TotalBookings     int64
	TotalUsers        int64
	TotalRevenue      int64
}

// DashboardStats is the admin dashboard payload.
type DashboardStats struct {
	Overview       DashboardOverview
	BookingStatus  map[BookingStatus]int64
	VehiclesByType map[VehicleType]int64
}
