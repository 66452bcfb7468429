package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/session"
)

// labelLoop drives one terminal labelling session. All state lives in the
// session object; the loop only translates keystrokes into session calls
// and prints validation errors inline.
type labelLoop struct {
	sess     *session.Session
	saver    *sessionSaver
	in       *bufio.Scanner
	out      io.Writer
	lastCase string
}

func (l *labelLoop) run() error {
	for !l.sess.Done() {
		rec, _ := l.sess.Current()

		if l.lastCase != "" && l.lastCase != rec.Case {
			fmt.Fprintf(l.out, "\n=== NEW CASE: %s ===\n", rec.Case)
		}
		l.lastCase = rec.Case

		l.showRecord()

		quit, err := l.handleCommand()
		if err != nil {
			return err
		}
		if quit {
			return l.finish(true)
		}
	}
	return l.finish(false)
}

func (l *labelLoop) showRecord() {
	rec, _ := l.sess.Current()
	fmt.Fprintf(l.out, "\n[%d/%d] ", l.sess.Cursor()+1, l.sess.Len())
	if l.sess.Protocol == labels.Histopath {
		fmt.Fprintf(l.out, "%s / %s / %s / %s / %s\n", rec.Case, rec.Visit, rec.BodySite, rec.Magnification, rec.File)
	} else {
		fmt.Fprintf(l.out, "%s / %s / %s\n", rec.Case, rec.Visit, rec.File)
	}
	if prev, ok := l.sess.EntryFor(rec); ok {
		line := "  previously: " + prev.Category
		if prev.Subtype != "" {
			line += " -> " + prev.Subtype
		}
		if prev.Comment != "" {
			line += " | " + prev.Comment
		}
		fmt.Fprintln(l.out, line)
	}
	fmt.Fprintf(l.out, "  labeled %d/%d\n", l.sess.Labeled(), l.sess.Len())
	l.sess.StartTimer()
}

// handleCommand reads and executes one top-level command. It returns
// quit=true when the annotator asked to stop.
func (l *labelLoop) handleCommand() (bool, error) {
	if l.sess.Protocol == labels.Histopath {
		fmt.Fprintln(l.out, "  [1] Normal  [2] Dysplasia  [3] Cancer  [4] Indeterminate")
	} else {
		fmt.Fprintln(l.out, "  [s] Suspicious  [n] Non-Suspicious  [x] NA")
	}
	fmt.Fprintln(l.out, "  [b] back  [f] forward  [j N] jump  [c] clear label  [w] save  [q] quit")

	line, ok := l.readLine("> ")
	if !ok {
		return true, nil
	}

	switch {
	case line == "q":
		return true, nil
	case line == "w":
		l.saveWithRetry(true)
		return false, nil
	case line == "b":
		if err := l.sess.Back(); err != nil {
			fmt.Fprintln(l.out, " ", err)
		}
		return false, nil
	case line == "f":
		if err := l.sess.Next(); err != nil {
			fmt.Fprintln(l.out, " ", err)
		}
		return false, nil
	case line == "c":
		if l.sess.Clear() {
			fmt.Fprintln(l.out, "  label cleared")
		} else {
			fmt.Fprintln(l.out, "  this image has no label yet")
		}
		return false, nil
	case strings.HasPrefix(line, "j"):
		arg := strings.TrimSpace(strings.TrimPrefix(line, "j"))
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintln(l.out, "  usage: j N (1-based image number)")
			return false, nil
		}
		if err := l.sess.JumpTo(n - 1); err != nil {
			fmt.Fprintln(l.out, " ", err)
		}
		return false, nil
	}

	if l.sess.Protocol == labels.Histopath {
		l.commitHistopath(line)
	} else {
		l.commitClinical(line)
	}
	return false, nil
}

func (l *labelLoop) commitClinical(key string) {
	var label string
	switch key {
	case "s":
		label = labels.Suspicious
	case "n":
		label = labels.NonSuspicious
	case "x":
		label = labels.NA
	default:
		fmt.Fprintln(l.out, "  unknown command:", key)
		return
	}

	comment := ""
	if label == labels.NA {
		comment = l.readComment(true)
	}
	if err := l.sess.CommitClinical(label, comment); err != nil {
		fmt.Fprintln(l.out, " ", err)
	}
}

func (l *labelLoop) commitHistopath(key string) {
	var diagnosis string
	switch key {
	case "1":
		diagnosis = labels.Normal
	case "2":
		diagnosis = labels.Dysplasia
	case "3":
		diagnosis = labels.Cancer
	case "4":
		diagnosis = labels.Indeterminate
	default:
		fmt.Fprintln(l.out, "  unknown command:", key)
		return
	}

	grading, ok := l.promptGrading(diagnosis)
	if !ok {
		return
	}

	required := diagnosis == labels.Indeterminate || grading.Ungradable
	comment := l.readComment(required)

	if err := l.sess.CommitHistopath(diagnosis, grading, comment); err != nil {
		fmt.Fprintln(l.out, " ", err)
	}
}

// promptGrading collects the secondary selections for a diagnosis. An
// empty answer cancels back to the primary prompt.
func (l *labelLoop) promptGrading(diagnosis string) (labels.Grading, bool) {
	var g labels.Grading
	switch diagnosis {
	case labels.Normal:
		fmt.Fprintln(l.out, "  tissue: [1] Stroma  [2] Epithelium  [3] Both")
		switch answer, _ := l.readLine("tissue> "); answer {
		case "1":
			g.Tissue = labels.Stroma
		case "2":
			g.Tissue = labels.Epithelium
		case "3":
			g.Tissue = labels.Both
		default:
			return g, false
		}
	case labels.Dysplasia:
		fmt.Fprintln(l.out, "  risk: [1] Low  [2] High  [u] Ungradable")
		switch answer, _ := l.readLine("risk> "); answer {
		case "1":
			g.Risk = labels.LowRisk
		case "2":
			g.Risk = labels.HighRisk
		case "u":
			g.Ungradable = true
			return g, true
		default:
			return g, false
		}
		fmt.Fprintln(l.out, "  grade: [1] Mild  [2] Moderate  [3] Severe")
		switch answer, _ := l.readLine("grade> "); answer {
		case "1":
			g.Tier = labels.Mild
		case "2":
			g.Tier = labels.Moderate
		case "3":
			g.Tier = labels.Severe
		default:
			return g, false
		}
	case labels.Cancer:
		fmt.Fprintln(l.out, "  differentiation: [1] Well  [2] Moderate  [3] Poor  [u] Ungradable")
		switch answer, _ := l.readLine("diff> "); answer {
		case "1":
			g.Tier = labels.WellDifferentiated
		case "2":
			g.Tier = labels.ModeratelyDifferentiated
		case "3":
			g.Tier = labels.PoorlyDifferentiated
		case "u":
			g.Ungradable = true
		default:
			return g, false
		}
	}
	return g, true
}

func (l *labelLoop) readComment(required bool) string {
	prompt := "comment (optional)> "
	if required {
		prompt = "comment (REQUIRED)> "
	}
	answer, _ := l.readLine(prompt)
	return answer
}

func (l *labelLoop) readLine(prompt string) (string, bool) {
	fmt.Fprint(l.out, prompt)
	if !l.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(l.in.Text()), true
}

// saveWithRetry surfaces persistence errors and offers a retry, instead of
// losing the in-memory map.
func (l *labelLoop) saveWithRetry(partial bool) {
	for {
		err := l.saver.save(partial)
		if err == nil {
			fmt.Fprintf(l.out, "  saved %d labels to %s\n", l.sess.Labeled(), l.saver.output)
			return
		}
		fmt.Fprintln(l.out, "  save failed:", err)
		answer, ok := l.readLine("  retry? [y/N] ")
		if !ok || answer != "y" {
			return
		}
	}
}

func (l *labelLoop) finish(quitEarly bool) error {
	if l.sess.Labeled() == 0 {
		fmt.Fprintln(l.out, "\nNo labels were committed; nothing to save.")
		return nil
	}
	partial := quitEarly || l.sess.Labeled() < l.sess.Len()
	if err := l.saver.save(partial); err != nil {
		return errors.Join(errors.New("final save failed"), err)
	}
	fmt.Fprintf(l.out, "\nSaved %d labels to %s\nSummary: %s\n",
		l.sess.Labeled(), l.saver.output, report.SummaryPath(l.saver.output))
	return nil
}
