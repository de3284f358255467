// Package trip holds the trip plan model shared by the assistant, the
// conversation sessions and the stores.
package trip

import (
	"errors"
	"fmt"
	"time"
)

// Plan is a trip plan as produced by the generator. Before the final turn
// it is partial: any field may be empty and the collections are usually nil.
type Plan struct {
	Destination Text      `json:"destination,omitempty" bson:"destination,omitempty"`
	Duration    Text      `json:"duration,omitempty" bson:"duration,omitempty"`
	Origin      Text      `json:"origin,omitempty" bson:"origin,omitempty"`
	Budget      Text      `json:"budget,omitempty" bson:"budget,omitempty"`
	GroupSize   Text      `json:"group_size,omitempty" bson:"group_size,omitempty"`
	Hotels      []Hotel   `json:"hotels,omitempty" bson:"hotels,omitempty"`
	Itinerary   []DayPlan `json:"itinerary,omitempty" bson:"itinerary,omitempty"`
}

type Hotel struct {
	Name        Text         `json:"hotel_name" bson:"hotel_name"`
	Address     Text         `json:"hotel_address" bson:"hotel_address"`
	Price       Text         `json:"price_per_night" bson:"price_per_night"`
	ImageURL    Text         `json:"hotel_image_url" bson:"hotel_image_url"`
	Coordinates *Coordinates `json:"geo_coordinates,omitempty" bson:"geo_coordinates,omitempty"`
	Rating      Number       `json:"rating" bson:"rating"`
	Description Text         `json:"description" bson:"description"`
}

type DayPlan struct {
	Day             Count      `json:"day" bson:"day"`
	Summary         Text       `json:"day_plan" bson:"day_plan"`
	BestTimeToVisit Text       `json:"best_time_to_visit_day" bson:"best_time_to_visit_day"`
	Activities      []Activity `json:"activities" bson:"activities"`
}

type Activity struct {
	Name            Text         `json:"place_name" bson:"place_name"`
	Details         Text         `json:"place_details" bson:"place_details"`
	ImageURL        Text         `json:"place_image_url" bson:"place_image_url"`
	Coordinates     *Coordinates `json:"geo_coordinates,omitempty" bson:"geo_coordinates,omitempty"`
	Address         Text         `json:"place_address" bson:"place_address"`
	TicketPricing   Text         `json:"ticket_pricing" bson:"ticket_pricing"`
	TravelTime      Text         `json:"time_travel_each_location" bson:"time_travel_each_location"`
	BestTimeToVisit Text         `json:"best_time_to_visit" bson:"best_time_to_visit"`
}

type Coordinates struct {
	Latitude  Number `json:"latitude" bson:"latitude"`
	Longitude Number `json:"longitude" bson:"longitude"`
}

var ErrCoordinatesOutOfRange = errors.New("geo coordinates out of range")

func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: (%g, %g)", ErrCoordinatesOutOfRange, c.Latitude, c.Longitude)
	}
	return nil
}

// Complete reports whether the fields every final plan must carry are set.
func (p Plan) Complete() bool {
	return !p.Destination.Blank() && !p.Origin.Blank() && !p.Duration.Blank()
}

// Missing lists the required top-level fields that are empty.
func (p Plan) Missing() []string {
	var out []string
	if p.Destination.Blank() {
		out = append(out, "destination")
	}
	if p.Origin.Blank() {
		out = append(out, "origin")
	}
	if p.Duration.Blank() {
		out = append(out, "duration")
	}
	return out
}

// Validate checks every coordinate pair in the plan.
func (p Plan) Validate() error {
	for i, h := range p.Hotels {
		if h.Coordinates == nil {
			continue
		}
		if err := h.Coordinates.Validate(); err != nil {
			return fmt.Errorf("hotel %d (%s): %w", i+1, h.Name, err)
		}
	}
	for _, d := range p.Itinerary {
		for j, a := range d.Activities {
			if a.Coordinates == nil {
				continue
			}
			if err := a.Coordinates.Validate(); err != nil {
				return fmt.Errorf("day %d activity %d (%s): %w", d.Day, j+1, a.Name, err)
			}
		}
	}
	return nil
}

// Merge folds o into p, last value wins for every non-empty field.
func (p *Plan) Merge(o Plan) {
	mergeText(&p.Destination, o.Destination)
	mergeText(&p.Duration, o.Duration)
	mergeText(&p.Origin, o.Origin)
	mergeText(&p.Budget, o.Budget)
	mergeText(&p.GroupSize, o.GroupSize)
	if len(o.Hotels) > 0 {
		p.Hotels = append([]Hotel(nil), o.Hotels...)
	}
	if len(o.Itinerary) > 0 {
		p.Itinerary = append([]DayPlan(nil), o.Itinerary...)
	}
}

func (p Plan) Empty() bool {
	return p.Destination == "" && p.Duration == "" && p.Origin == "" && p.Budget == "" &&
		p.GroupSize == "" && len(p.Hotels) == 0 && len(p.Itinerary) == 0
}

func mergeText(dst *Text, v Text) {
	if !v.Blank() {
		*dst = v
	}
}

// Record is a stored plan.
type Record struct {
	ID        string    `json:"id" bson:"trip_id"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	Plan      Plan      `json:"trip_plan" bson:"trip_plan"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Page is one page of records, newest first. NextCursor is empty on the
// last page.
type Page struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}
