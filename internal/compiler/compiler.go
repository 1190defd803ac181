// Package compiler reads a dialog XML document into a dialog.Dialog, checking
// its references on the way.
//
// Structural problems that make the document unreadable are returned as a
// *CompileError. Everything else is recorded as a diagnostic on the dialog.
package compiler

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"dialogtool/internal/dialog"
	"dialogtool/internal/mappinguri"
	"dialogtool/internal/textnorm"
)

// CompileError is a fatal structural error in the dialog document.
type CompileError struct {
	Line    int
	Element string
	Msg     string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

// Options tune how a document is read.
type Options struct {
	MainFolderLabel     string
	AnswerFolderLabel   string
	IntentsFolderLabel  string
	ConceptsFolderLabel string

	// Federation maps an entity name to its audience groups and the value names
	// each group may display.
	Federation map[string]map[string][]string

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MainFolderLabel == "" {
		o.MainFolderLabel = "Main"
	}
	if o.AnswerFolderLabel == "" {
		o.AnswerFolderLabel = "AnswerNode"
	}
	if o.IntentsFolderLabel == "" {
		o.IntentsFolderLabel = "CM-CIC"
	}
	if o.ConceptsFolderLabel == "" {
		o.ConceptsFolderLabel = "Concepts"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type compiler struct {
	d    *dialog.Dialog
	opts Options
	log  *zap.Logger
}

// CompileFile reads the dialog document at path.
func CompileFile(path string, opts Options) (*dialog.Dialog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dialog file: %w", err)
	}
	defer f.Close()
	return Compile(f, path, opts)
}

// Compile reads a dialog document. path is only used to name the dialog.
func Compile(r io.Reader, path string, opts Options) (*dialog.Dialog, error) {
	opts = opts.withDefaults()
	root, err := parseXML(r)
	if err != nil {
		return nil, err
	}

	c := &compiler{d: dialog.New(path), opts: opts, log: opts.Logger.With(zap.String("dialog", path))}
	steps := []struct {
		name string
		fn   func(*element) error
	}{
		{"main folder", c.readMainFolder},
		{"answer folder", c.readAnswerFolder},
		{"variables", c.readVariables},
		{"constants", c.readConstants},
		{"concepts", c.readConcepts},
		{"entities", c.readEntities},
		{"intents", c.readIntents},
	}
	for _, step := range steps {
		if err := step.fn(root); err != nil {
			return nil, err
		}
		c.log.Debug("read dialog section", zap.String("section", step.name))
	}

	c.d.ResolveAndCheckReferences()
	c.reportOfflineElements(root)

	c.log.Info("dialog compiled",
		zap.Int("intents", len(c.d.IntentNodes())),
		zap.Int("nodes", c.d.NodeCount()),
		zap.Int("diagnostics", len(c.d.Diagnostics)))
	return c.d, nil
}

func requiredAttr(e *element, name string) (string, error) {
	v, ok := e.attr(name)
	if !ok {
		return "", &CompileError{Line: e.line, Element: e.name, Msg: fmt.Sprintf("missing attribute %s on <%s>", name, e.name)}
	}
	return v, nil
}

func missingFolder(label string) error {
	return &CompileError{Element: "folder", Msg: fmt.Sprintf("missing <folder label=\"%s\">", label)}
}

func (c *compiler) readMainFolder(root *element) error {
	main := root.folder(c.opts.MainFolderLabel)
	if main == nil {
		return missingFolder(c.opts.MainFolderLabel)
	}
	start := main.child("output").child("output")
	if start == nil {
		return &CompileError{Line: main.line, Element: "folder", Msg: "missing <output><output> start of dialog node in main folder"}
	}
	id, err := requiredAttr(start, "id")
	if err != nil {
		return err
	}
	c.d.StartNodeID = id
	return nil
}

func (c *compiler) readAnswerFolder(root *element) error {
	folder := root.folder(c.opts.AnswerFolderLabel)
	if folder == nil {
		return missingFolder(c.opts.AnswerFolderLabel)
	}
	folderID, err := requiredAttr(folder, "id")
	if err != nil {
		return err
	}
	output := folder.child("output")
	if output == nil {
		return &CompileError{Line: folder.line, Element: "folder", Msg: "missing <output> in answer folder"}
	}
	outputID, err := requiredAttr(output, "id")
	if err != nil {
		return err
	}
	longTail := output.child("output")
	if longTail == nil {
		return &CompileError{Line: output.line, Element: "output", Msg: "missing long tail <output> in answer folder"}
	}
	longTailID, err := requiredAttr(longTail, "id")
	if err != nil {
		return err
	}
	c.d.FatHeadAnswerNodeIDs = []string{folderID, outputID}
	c.d.LongTailAnswerNodeID = longTailID
	return nil
}

func (c *compiler) readVariables(root *element) error {
	sections := root.descendants("variables")
	if len(sections) == 0 {
		return &CompileError{Element: "variables", Msg: "missing <variables> section"}
	}
	for _, el := range sections[0].descendants("var") {
		if el.isOffline() {
			continue
		}
		name, err := requiredAttr(el, "name")
		if err != nil {
			return err
		}
		v := &dialog.Variable{Name: name, Line: el.line, InitValue: el.attrOr("initValue")}
		switch typ := el.attrOr("type"); {
		case strings.EqualFold(typ, "YESNO"):
			v.Type = dialog.TypeYesNo
		case strings.EqualFold(typ, "NUMBER"):
			v.Type = dialog.TypeNumber
		default:
			v.Type = dialog.TypeText
		}
		c.d.AddVariable(v)
	}
	return nil
}

func (c *compiler) readConstants(root *element) error {
	sections := root.descendants("constants")
	if len(sections) == 0 {
		return &CompileError{Element: "constants", Msg: "missing <constants> section"}
	}
	for _, el := range sections[0].descendants("var") {
		if el.isOffline() {
			continue
		}
		name, err := requiredAttr(el, "name")
		if err != nil {
			return err
		}
		c.d.AddConstant(&dialog.Constant{Name: name, Value: el.value(), Line: el.line})
	}
	return nil
}

func (c *compiler) readConcepts(root *element) error {
	for _, folder := range root.descendants("folder") {
		if folder.attrOr("label") != c.opts.ConceptsFolderLabel {
			continue
		}
		for _, el := range folder.descendants("concept") {
			if el.isOffline() {
				continue
			}
			var synonyms []string
			for _, item := range el.descendants("item") {
				synonyms = append(synonyms, textnorm.RemoveDiacriticsAndNonAlphanumeric(item.value()))
			}
			c.d.AddConcept(&dialog.Concept{ID: el.attrOr("id"), Line: el.line, Synonyms: synonyms})
		}
	}
	c.d.CompileConcepts()
	return nil
}

func (c *compiler) readEntities(root *element) error {
	for _, el := range root.descendants("entity") {
		if el.isOffline() {
			continue
		}
		name, err := requiredAttr(el, "name")
		if err != nil {
			return err
		}
		e := dialog.NewEntity(name, el.line)
		for _, valueEl := range el.descendants("value") {
			if valueEl.isOffline() {
				continue
			}
			valueName, err := requiredAttr(valueEl, "name")
			if err != nil {
				return err
			}
			text, err := requiredAttr(valueEl, "value")
			if err != nil {
				return err
			}
			conceptRef := ""
			if concepts := valueEl.descendants("concept"); len(concepts) > 0 {
				conceptRef = concepts[0].attrOr("ref")
			}
			ev := e.AddValue(valueName, text, valueEl.line, conceptRef)
			c.d.LinkEntityValueToConcept(ev)
		}
		c.d.AddEntity(e)
	}
	c.d.SealEntities(c.opts.Federation)

	_, insurance := c.d.Entity(mappinguri.GuaranteeEntity)
	c.d.MappingConfig = mappinguri.Detect(insurance)
	c.log.Debug("mapping uri layout detected", zap.String("layout", c.d.MappingConfig.Name))
	return nil
}

func (c *compiler) readIntents(root *element) error {
	folder := root.folder(c.opts.IntentsFolderLabel)
	if folder == nil {
		return missingFolder(c.opts.IntentsFolderLabel)
	}
	return c.readIntentsFolder(c.opts.IntentsFolderLabel, folder)
}

func (c *compiler) reportOfflineElements(root *element) {
	all := append([]*element{root}, root.descendants("")...)
	for _, el := range all {
		if el.isOffline() {
			c.d.Report(el.line, dialog.Info, "Element %s is disabled, you should maybe delete it", el.name)
		}
	}
}
