package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/samber/lo"

	"github.com/admitdesk/admitdesk/core"
	appfs "github.com/admitdesk/admitdesk/fs"
)

const (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	pwdMinLen = 8
	pwdMaxSim = .7
)

var nonAlnum = regexp.MustCompile("[^A-Za-z0-9]")

// passwordRule is one clause of the password policy. Rules run in order and the first failure is reported.
type passwordRule struct {
	tag  string
	text string
	ok   func(pwd string, attrs []string) bool
}

var passwordPolicy = []passwordRule{
	{
		tag:  "pwdminlen",
		text: fmt.Sprintf("password must contain at least %d characters", pwdMinLen),
		ok:   func(pwd string, _ []string) bool { return len([]rune(pwd)) >= pwdMinLen },
	},
	{
		tag:  "pwdnospace",
		text: "password must not contain whitespace",
		ok:   func(pwd string, _ []string) bool { return strings.IndexFunc(pwd, unicode.IsSpace) < 0 },
	},
	{
		tag:  "pwdnotallnum",
		text: "password cannot be entirely numeric",
		ok:   func(pwd string, _ []string) bool { return strings.IndexFunc(pwd, notDigit) >= 0 },
	},
	{
		tag:  "pwdcplx",
		text: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		ok: func(pwd string, _ []string) bool {
			return strings.IndexFunc(pwd, unicode.IsUpper) >= 0 &&
				strings.IndexFunc(pwd, unicode.IsLower) >= 0 &&
				strings.IndexFunc(pwd, unicode.IsDigit) >= 0 &&
				nonAlnum.MatchString(pwd)
		},
	},
	{
		tag:  "pwdtoosim",
		text: "password cannot be similar to user attributes",
		ok: func(pwd string, attrs []string) bool {
			return !lo.SomeBy(attrs, func(attr string) bool { return similarity(pwd, attr) >= pwdMaxSim })
		},
	},
	{
		tag:  "pwdnocommon",
		text: "password is too common",
		ok:   func(pwd string, _ []string) bool { return !commonPasswords.has(pwd) },
	},
}

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	validate.RegisterStructValidation(passwordValidation, NewUser{}, UpdateUser{}, ResetUserPassword{})
	for _, rule := range passwordPolicy {
		core.RegisterCustomTranslation(validate, translator, rule.tag, rule.text)
	}
}

func notDigit(r rune) bool { return !unicode.IsDigit(r) }

func similarity(pwd, attr string) float64 {
	if attr == "" {
		return 0
	}
	a, b := strings.Split(strings.ToLower(pwd), ""), strings.Split(strings.ToLower(attr), "")
	return difflib.NewMatcher(a, b).QuickRatio()
}

// checkPassword returns the tag of the first policy rule pwd breaks, or "".
func checkPassword(pwd string, attrs ...string) string {
	for _, rule := range passwordPolicy {
		if !rule.ok(pwd, attrs) {
			return rule.tag
		}
	}
	return ""
}

func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	return ok && lo.Every(AllRoles, roles)
}

// passwordValidation applies the policy on structs carrying a new password.
// An UpdateUser without password keeps the current one.
func passwordValidation(sl validator.StructLevel) {
	var (
		pwd   string
		attrs []string
	)
	switch v := sl.Current().Interface().(type) {
	case NewUser:
		pwd, attrs = v.Password, []string{v.Name, v.Email}
	case UpdateUser:
		if v.Password == "" {
			return
		}
		pwd, attrs = v.Password, []string{v.Name, v.Email}
	case ResetUserPassword:
		pwd = v.Password
	default:
		return
	}
	if tag := checkPassword(pwd, attrs...); tag != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

// passwordList is a sorted, lowercased set of passwords.
type passwordList struct {
	mu   sync.RWMutex
	pwds []string
}

var commonPasswords passwordList

func (l *passwordList) set(pwds []string) {
	sort.Strings(pwds)
	l.mu.Lock()
	l.pwds = pwds
	l.mu.Unlock()
}

func (l *passwordList) has(pwd string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pwd = strings.ToLower(pwd)
	i := sort.SearchStrings(l.pwds, pwd)
	return i < len(l.pwds) && l.pwds[i] == pwd
}

// LoadCommonPasswords loads the embedded list of passwords too common to be accepted.
func LoadCommonPasswords(logger core.Logger) {
	file, err := appfs.FS.Open("assets/common-passwords.txt.gz")
	if err != nil {
		logger.Error(fmt.Sprintf("opening common passwords: %v", err), err)
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		logger.Error(fmt.Sprintf("reading common passwords: %v", err), err)
		return
	}
	pwds := make([]string, 0, 1024)
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error(fmt.Sprintf("scanning common passwords: %v", err), err)
	}
	commonPasswords.set(pwds)
}
