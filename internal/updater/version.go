package updater

import (
	"strconv"
	"strings"
)

// Version is a parsed vMAJOR.MINOR.PATCH release number. Anything that does
// not parse is treated as a development build.
type Version struct {
	Major, Minor, Patch int
	Pre                 string
	dev                 bool
}

// ParseVersion accepts "1.2.3", "v1.2.3" and "v1.2.3-rc.1". Build metadata
// after '+' is ignored.
func ParseVersion(s string) Version {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	s, _, _ = strings.Cut(s, "+")
	core, pre, _ := strings.Cut(s, "-")

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{dev: true}
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{dev: true}
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Pre: pre}
}

// IsDev reports whether the version came from an unreleased build.
func (v Version) IsDev() bool { return v.dev }

// IsOlderThan compares release numbers. A pre-release sorts before the
// release it precedes.
func (v Version) IsOlderThan(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	if v.Patch != o.Patch {
		return v.Patch < o.Patch
	}
	switch {
	case v.Pre == o.Pre:
		return false
	case v.Pre == "":
		return false
	case o.Pre == "":
		return true
	}
	return v.Pre < o.Pre
}

func (v Version) String() string {
	if v.dev {
		return "dev"
	}
	s := "v" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	return s
}
