package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"venuebook/internal/audit"
	"venuebook/internal/lifecycle"
	"venuebook/internal/model"
	"venuebook/internal/slots"
)

type command func(ctx context.Context, a *app, args []string, out io.Writer) error

var commands = map[string]command{
	"submit":    cmdSubmit,
	"pending":   cmdPending,
	"list":      cmdList,
	"show":      cmdShow,
	"check":     cmdCheck,
	"conflicts": cmdConflicts,
	"suggest":   cmdSuggest,
	"slots":     cmdSlots,
	"approve":   cmdDecision(model.StatusApproved),
	"reject":    cmdDecision(model.StatusRejected),
	"log":       cmdLog,
	"export":    cmdExport,
	"backup":    cmdBackup,
	"serve":     cmdServe,
}

// storeless commands open the data files only while they touch them.
var storeless = map[string]bool{
	"backup": true,
	"serve":  true,
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %w", errUsage, fs.Name(), err)
	}
	return nil
}

func cmdSubmit(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("submit")
	var req model.Request
	fs.StringVar(&req.Club, "club", "", "club name")
	fs.StringVar(&req.EventName, "event", "", "event name")
	fs.StringVar(&req.ContactEmail, "email", "", "contact email")
	fs.StringVar(&req.Day, "day", "", "weekday label (derived from -date when empty)")
	fs.StringVar(&req.Date, "date", "", "date YYYY-MM-DD")
	fs.StringVar(&req.TimeSlot, "slot", "", "time slot HH:MM-HH:MM")
	fs.StringVar(&req.Venue, "venue", "", "venue name")
	fs.IntVar(&req.ExpectedAttendance, "attendance", 0, "expected attendance")
	fs.StringVar(&req.Purpose, "purpose", "", "purpose")
	if err := parse(fs, args); err != nil {
		return err
	}

	if req.Day == "" {
		if d, err := time.Parse(model.DateLayout, req.Date); err == nil {
			req.Day = d.Weekday().String()
		}
	}

	id, err := a.lifecycle.Submit(ctx, req)
	if errors.Is(err, lifecycle.ErrSlotTaken) {
		fmt.Fprintf(out, "%s is not available on %s at %s\n", req.Venue, req.Date, req.TimeSlot)
		slot, _ := model.ParseTimeSlot(req.TimeSlot)
		printSuggestions(out, a.lifecycle.SuggestVenues(req.Date, slot))
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Request #%d submitted, status %s\n", id, model.StatusPending)
	return nil
}

func cmdPending(_ context.Context, a *app, args []string, out io.Writer) error {
	if err := parse(newFlagSet("pending"), args); err != nil {
		return err
	}
	printBookings(out, a.store.GetPendingRequests())
	return nil
}

func cmdList(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("list")
	club := fs.String("club", "", "only bookings of this club")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *club != "" {
		printBookings(out, a.store.GetClubBookings(*club))
		return nil
	}
	printBookings(out, a.store.GetAllBookings())
	return nil
}

func cmdShow(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("show")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := bookingID(fs)
	if err != nil {
		return err
	}

	r, err := a.lifecycle.Review(id)
	if err != nil {
		return err
	}

	b := r.Booking
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", b.ID)
	fmt.Fprintf(tw, "Club:\t%s\n", b.Club)
	fmt.Fprintf(tw, "Event:\t%s\n", b.EventName)
	fmt.Fprintf(tw, "Contact:\t%s\n", b.ContactEmail)
	fmt.Fprintf(tw, "When:\t%s %s %s\n", b.Day, b.Date, b.TimeSlot)
	fmt.Fprintf(tw, "Venue:\t%s\n", b.Venue)
	fmt.Fprintf(tw, "Attendance:\t%d\n", b.ExpectedAttendance)
	fmt.Fprintf(tw, "Purpose:\t%s\n", b.Purpose)
	fmt.Fprintf(tw, "Status:\t%s\n", b.Status)
	fmt.Fprintf(tw, "Submitted:\t%s\n", model.FormatTimestamp(b.SubmittedAt))
	if b.IsProcessed() {
		fmt.Fprintf(tw, "Processed:\t%s\n", model.FormatTimestamp(*b.ProcessedAt))
	} else {
		fmt.Fprintf(tw, "Processed:\t-\n")
	}
	if b.AdminComment != nil {
		fmt.Fprintf(tw, "Comment:\t%s\n", *b.AdminComment)
	}
	_ = tw.Flush()

	if len(r.Conflicts) > 0 {
		fmt.Fprintf(out, "\nWarning: %d conflicting booking(s)\n", len(r.Conflicts))
		printBookings(out, r.Conflicts)
	}
	return nil
}

// venueSlotFlags registers the -venue, -date and -slot flags shared by several commands.
type venueSlotFlags struct {
	venue, date, slot string
}

func (v *venueSlotFlags) register(fs *flag.FlagSet, withVenue bool) {
	if withVenue {
		fs.StringVar(&v.venue, "venue", "", "venue name")
	}
	fs.StringVar(&v.date, "date", "", "date YYYY-MM-DD")
	fs.StringVar(&v.slot, "slot", "", "time slot HH:MM-HH:MM")
}

func (v *venueSlotFlags) timeSlot() (model.TimeSlot, error) {
	slot, err := model.ParseTimeSlot(v.slot)
	if err != nil {
		return model.TimeSlot{}, &model.ValidationError{Problems: []string{err.Error()}}
	}
	return slot, nil
}

func cmdCheck(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("check")
	var f venueSlotFlags
	f.register(fs, true)
	if err := parse(fs, args); err != nil {
		return err
	}
	slot, err := f.timeSlot()
	if err != nil {
		return err
	}

	if a.store.CheckAvailability(f.venue, f.date, slot) {
		fmt.Fprintf(out, "%s is available on %s at %s\n", f.venue, f.date, slot)
		return nil
	}
	fmt.Fprintf(out, "%s is not available on %s at %s\n", f.venue, f.date, slot)
	return nil
}

func cmdConflicts(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("conflicts")
	var f venueSlotFlags
	f.register(fs, true)
	exclude := fs.Int64("exclude", 0, "booking id to leave out")
	if err := parse(fs, args); err != nil {
		return err
	}
	slot, err := f.timeSlot()
	if err != nil {
		return err
	}

	printBookings(out, a.store.GetConflictingBookings(f.venue, f.date, slot, *exclude))
	return nil
}

func cmdSuggest(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("suggest")
	var f venueSlotFlags
	f.register(fs, false)
	if err := parse(fs, args); err != nil {
		return err
	}
	slot, err := f.timeSlot()
	if err != nil {
		return err
	}

	printSuggestions(out, a.lifecycle.SuggestVenues(f.date, slot))
	return nil
}

func cmdSlots(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("slots")
	venue := fs.String("venue", "", "venue name")
	date := fs.String("date", "", "date YYYY-MM-DD")
	freeOnly := fs.Bool("free", false, "list only free slots")
	windows := fs.Bool("windows", false, "merge consecutive free slots into windows")
	if err := parse(fs, args); err != nil {
		return err
	}

	list, err := a.lifecycle.FreeSlots(*venue, *date)
	if err != nil {
		return err
	}

	if *windows {
		free := slots.FreeWindows(list)
		if len(free) == 0 {
			fmt.Fprintln(out, "No free time.")
		}
		for _, w := range free {
			fmt.Fprintf(out, "%s  free\n", w)
		}
		return nil
	}
	if *freeOnly {
		list = slots.GetAvailableSlots(list)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range list {
		state := "booked"
		if s.Available {
			state = "free"
		}
		fmt.Fprintf(tw, "%s\t%s\n", s, state)
	}
	return tw.Flush()
}

func cmdDecision(status model.Status) command {
	return func(ctx context.Context, a *app, args []string, out io.Writer) error {
		fs := newFlagSet(strings.ToLower(status.String()))
		comment := fs.String("comment", "", "admin comment")
		if err := parse(fs, args); err != nil {
			return err
		}
		id, err := bookingID(fs)
		if err != nil {
			return err
		}

		if status == model.StatusApproved {
			err = a.lifecycle.Approve(ctx, id, *comment)
		} else {
			err = a.lifecycle.Reject(ctx, id, *comment)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Request #%d %s\n", id, strings.ToLower(status.String()))
		return nil
	}
}

func cmdLog(_ context.Context, a *app, args []string, out io.Writer) error {
	if err := parse(newFlagSet("log"), args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tCLUB\tVENUE\tDATE\tSLOT\tEVENT\tCOMMENT")
	for _, e := range a.store.GetLogs() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			model.FormatTimestamp(e.Time), e.Status, e.Club, e.Venue, e.Date, e.TimeSlot, e.Event, e.AdminComment)
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("export")
	path := fs.String("o", audit.GenerateFilename(time.Now()), "output .xlsx file")
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := audit.NewExporter(a.tables(), nil, a.logger).ExportToFile(ctx, *path); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(out, "Exported to %s\n", *path)
	return nil
}

func cmdBackup(ctx context.Context, a *app, args []string, out io.Writer) error {
	if err := parse(newFlagSet("backup"), args); err != nil {
		return err
	}

	dir, err := a.backupService().PerformBackup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backup written to %s\n", dir)
	return nil
}

func bookingID(fs *flag.FlagSet) (int64, error) {
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("%w: %s needs a booking id", errUsage, fs.Name())
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid booking id %q", errUsage, fs.Arg(0))
	}
	return id, nil
}

func printBookings(out io.Writer, bookings []model.Booking) {
	if len(bookings) == 0 {
		fmt.Fprintln(out, "No bookings.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCLUB\tEVENT\tVENUE\tDATE\tSLOT\tATTENDANCE")
	for _, b := range bookings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			b.ID, b.Status, b.Club, b.EventName, b.Venue, b.Date, b.TimeSlot, b.ExpectedAttendance)
	}
	_ = tw.Flush()
}

func printSuggestions(out io.Writer, suggestions []slots.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintln(out, "No venues available for this slot.")
		return
	}
	fmt.Fprintln(out, "Available venues:")
	for _, s := range suggestions {
		fmt.Fprintf(out, "  %s: %s\n", s.Category, strings.Join(s.Venues, ", "))
	}
}
