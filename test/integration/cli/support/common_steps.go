package support

import (
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/testutil"
)

// RegisterCommonSteps registers file and command steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a bank statement image "([^"]*)"$`, testCtx.aBankStatementImage)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^a ground truth file "([^"]*)" for the sample statement$`, testCtx.aGroundTruthFile)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.SetEnv)
	sc.Step(`^I run ledgerscan with "([^"]*)"$`, testCtx.iRunLedgerscanWith)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the error should contain "([^"]*)"$`, testCtx.theErrorShouldContain)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^stderr should contain "([^"]*)"$`, testCtx.stderrShouldContain)
	sc.Step(`^the output should be a document with (\d+) transactions$`, testCtx.theOutputShouldBeADocumentWith)
	sc.Step(`^the output should be a list of (\d+) documents$`, testCtx.theOutputShouldBeAListOf)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

func (testCtx *TestContext) aBankStatementImage(name string) error {
	img, _ := testutil.RenderStatement(testutil.StatementHeader, testutil.SampleRows(), testutil.DefaultRenderOptions())
	f, err := os.Create(testCtx.Path(name))
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (testCtx *TestContext) aFileContaining(name, content string) error {
	return os.WriteFile(testCtx.Path(name), []byte(content), 0o600)
}

func (testCtx *TestContext) aGroundTruthFile(name string) error {
	return os.WriteFile(testCtx.Path(name), []byte(testutil.TruthCSV(testutil.SampleRows())), 0o600)
}

func (testCtx *TestContext) iRunLedgerscanWith(args string) error {
	testCtx.RunCLI(strings.Fields(testCtx.expand(args)))
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %v failed: %w\nstderr: %s", testCtx.LastArgs, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %v succeeded, expected failure", testCtx.LastArgs)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldContain(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an error containing %q", text)
	}
	if !strings.Contains(testCtx.LastError.Error(), text) {
		return fmt.Errorf("error %q does not contain %q", testCtx.LastError, text)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(text string) error {
	text = testCtx.expand(text)
	if !strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output does not contain %q:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains %q", text)
	}
	return nil
}

func (testCtx *TestContext) stderrShouldContain(text string) error {
	if !strings.Contains(testCtx.LastStderr, text) {
		return fmt.Errorf("stderr does not contain %q:\n%s", text, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeADocumentWith(n int) error {
	var doc ledger.Document
	if err := json.Unmarshal([]byte(testCtx.LastOutput), &doc); err != nil {
		return fmt.Errorf("output is not a JSON document: %w", err)
	}
	if len(doc.Transactions) != n {
		return fmt.Errorf("expected %d transactions, got %d", n, len(doc.Transactions))
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeAListOf(n int) error {
	var docs []ledger.Document
	if err := json.Unmarshal([]byte(testCtx.LastOutput), &docs); err != nil {
		return fmt.Errorf("output is not a JSON array: %w", err)
	}
	if len(docs) != n {
		return fmt.Errorf("expected %d documents, got %d", n, len(docs))
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.Path(name)); err != nil {
		return fmt.Errorf("file %s does not exist: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, text string) error {
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), text) {
		return fmt.Errorf("file %s does not contain %q", name, text)
	}
	return nil
}
