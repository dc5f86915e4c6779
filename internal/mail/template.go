package mail

import (
	"fmt"
	"strings"
	"time"
)

// LoadView carries the load and carrier fields the templates need.
type LoadView struct {
	PONumber     string
	CarrierName  string
	SiteName     string
	SiteCode     string
	SiteAddress  string
	ProductType  string
	VolumeGal    float64
	CurrentETA   *time.Time
	DriverName   string
	DriverPhone  string
	ReplyAddress string
}

func orNot(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func formatETA(eta *time.Time) string {
	if eta == nil {
		return "Not provided"
	}
	return eta.Format("2006-01-02 15:04")
}

// ComposeETARequest builds the carrier email asking for an updated ETA.
func ComposeETARequest(v LoadView) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s Dispatch,\n\n", v.CarrierName)
	b.WriteString("We are requesting an updated ETA for the following load:\n\n")
	fmt.Fprintf(&b, "PO Number: %s\n", v.PONumber)
	fmt.Fprintf(&b, "Destination: %s (%s)\n", v.SiteName, v.SiteCode)
	if v.SiteAddress != "" {
		fmt.Fprintf(&b, "Destination Address: %s\n", v.SiteAddress)
	}
	fmt.Fprintf(&b, "Product: %s\n", orNot(v.ProductType, "Fuel"))
	fmt.Fprintf(&b, "Volume: %.0f gallons\n\n", v.VolumeGal)
	fmt.Fprintf(&b, "Current ETA: %s\n", formatETA(v.CurrentETA))
	fmt.Fprintf(&b, "Driver: %s\n", orNot(v.DriverName, "Not assigned"))
	fmt.Fprintf(&b, "Driver Phone: %s\n\n", orNot(v.DriverPhone, "Not provided"))
	b.WriteString("Please reply to this email with the updated ETA.\n\n")
	b.WriteString("Thank you,\nFuelWatch Coordinator\n")
	if v.ReplyAddress != "" {
		fmt.Fprintf(&b, "\n---\nThis is an automated message. Reply to: %s\n", v.ReplyAddress)
	}

	return Message{
		Subject: fmt.Sprintf("ETA Request - Load %s", v.PONumber),
		Body:    b.String(),
	}
}

// ComposeDelayedLoad builds the carrier email confirming status of a
// delayed load when the destination site is not yet at risk.
func ComposeDelayedLoad(v LoadView) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s Dispatch,\n\n", v.CarrierName)
	fmt.Fprintf(&b, "Load %s to %s (%s) is marked delayed.\n\n", v.PONumber, v.SiteName, v.SiteCode)
	fmt.Fprintf(&b, "Current ETA: %s\n", formatETA(v.CurrentETA))
	fmt.Fprintf(&b, "Driver: %s\n\n", orNot(v.DriverName, "Not assigned"))
	b.WriteString("The destination can absorb the delay for now, but please confirm\n")
	b.WriteString("the revised delivery time so we can plan around it.\n\n")
	b.WriteString("Thank you,\nFuelWatch Coordinator\n")
	if v.ReplyAddress != "" {
		fmt.Fprintf(&b, "\n---\nThis is an automated message. Reply to: %s\n", v.ReplyAddress)
	}

	return Message{
		Subject: fmt.Sprintf("Delayed Load %s - Please Confirm Revised ETA", v.PONumber),
		Body:    b.String(),
	}
}
