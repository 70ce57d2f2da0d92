package temps

// Test-support seams. Not part of the production contract.

// ResetRegistry clears the process-wide client back to uninitialized.
var ResetRegistry = resetRegistry
